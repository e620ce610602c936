package mail

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/imo-platform/access-control/internal/core/ports"
)

type message struct {
	subject *template.Template
	body    *template.Template
}

// Template context keys set by the credential service: username, full_name,
// site_name, login_url, timestamp and, for credentials/reset, temp_password.
var templates = map[ports.EmailTemplate]message{
	ports.EmailCredentials: mustParse(
		`Your {{.site_name}} account`,
		`Hello {{.full_name}},

An account has been created for you on {{.site_name}}.

  Username:           {{.username}}
  Temporary password: {{.temp_password}}

Sign in at {{.login_url}}. You will be asked to choose a new password on first login.
`),
	ports.EmailVerification: mustParse(
		`Your {{.site_name}} account is verified`,
		`Hello {{.full_name}},

Your account {{.username}} on {{.site_name}} has been verified. You can now sign in at {{.login_url}}.
`),
	ports.EmailPasswordReset: mustParse(
		`Your {{.site_name}} password was reset`,
		`Hello {{.full_name}},

An administrator reset the password of your account {{.username}}.

  Temporary password: {{.temp_password}}

Sign in at {{.login_url}} and choose a new password.
`),
	ports.EmailAccountDeactivated: mustParse(
		`Your {{.site_name}} account was deactivated`,
		`Hello {{.full_name}},

Your account {{.username}} on {{.site_name}} was deactivated on {{.timestamp}}.
All active sessions have been closed. Contact your property manager if this is unexpected.
`),
}

func mustParse(subject, body string) message {
	return message{
		subject: template.Must(template.New("subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New("body").Option("missingkey=zero").Parse(body)),
	}
}

// Render returns the subject and plain-text body for msg.
func Render(msg ports.EmailMessage) (subject, body string, err error) {
	tpl, ok := templates[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", msg.Template)
	}

	var sb, bb bytes.Buffer
	if err := tpl.subject.Execute(&sb, msg.Context); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&bb, msg.Context); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return sb.String(), bb.String(), nil
}
