package validation

import (
	"errors"
	"testing"

	"github.com/imo-platform/access-control/internal/core/domain"
)

type sample struct {
	Username   string `validate:"required,min=3"`
	Email      string `validate:"required,email"`
	Kind       string `validate:"required,oneof=owner tenant manager"`
	EmployeeID string `validate:"required_if=Kind manager"`
}

func TestValidator_Struct_CollectsEveryField(t *testing.T) {
	v := New()

	err := v.Struct(sample{Username: "ab", Email: "nope", Kind: "manager"})
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *domain.ValidationError, got %T", err)
	}

	got := map[string]string{}
	for _, f := range ve.Fields {
		got[f.Field] = f.Message
	}
	if got["username"] != "username must be at least 3 characters" {
		t.Errorf("unexpected username message: %q", got["username"])
	}
	if got["email"] != "email must be a valid email" {
		t.Errorf("unexpected email message: %q", got["email"])
	}
	if got["employee_id"] != "employee_id is required" {
		t.Errorf("unexpected employee_id message: %q", got["employee_id"])
	}
}

func TestValidator_Struct_Valid(t *testing.T) {
	v := New()

	if err := v.Struct(sample{Username: "alice", Email: "a@example.com", Kind: "tenant"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestSnake(t *testing.T) {
	cases := map[string]string{
		"EmployeeID":  "employee_id",
		"Username":    "username",
		"OldPassword": "old_password",
		"IP":          "ip",
	}
	for in, want := range cases {
		if got := snake(in); got != want {
			t.Errorf("snake(%q) = %q, want %q", in, got, want)
		}
	}
}
