package ports

import "context"

// PasswordHasher hashes and verifies plaintext passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// EmailTemplate names one of the account notification messages.
type EmailTemplate string

const (
	EmailCredentials        EmailTemplate = "credentials"
	EmailVerification       EmailTemplate = "verification"
	EmailPasswordReset      EmailTemplate = "password_reset"
	EmailAccountDeactivated EmailTemplate = "account_deactivated"
)

// EmailMessage is a templated notification addressed to one recipient.
type EmailMessage struct {
	Template  EmailTemplate
	Recipient string
	Context   map[string]string
}

// Mailer delivers one message synchronously.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// MailQueue delivers messages in the background; failures are observed
// (logged, counted), never returned.
type MailQueue interface {
	Enqueue(msg EmailMessage)
}
