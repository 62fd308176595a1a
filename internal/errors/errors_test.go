package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestConstructors_SetKindAndMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
		msg  string
	}{
		{"NotFound", NotFound("poll not found"), ErrNotFound, "poll not found"},
		{"NotFoundf", NotFoundf("poll %s not found", "p1"), ErrNotFound, "poll p1 not found"},
		{"Validation", Validation("invalid email"), ErrValidation, "invalid email"},
		{"Validationf", Validationf("%s is required", "name"), ErrValidation, "name is required"},
		{"Conflict", Conflict("busy"), ErrConflict, "busy"},
		{"Conflictf", Conflictf("poll %d busy", 3), ErrConflict, "poll 3 busy"},
		{"InvalidInput", InvalidInput("bad page"), ErrInvalidInput, "bad page"},
		{"InvalidInputf", InvalidInputf("page %d", 0), ErrInvalidInput, "page 0"},
		{"Credential", Credential("Invalid credentials"), ErrCredential, "Invalid credentials"},
		{"Rejected", Rejected("Poll has ended"), ErrRejected, "Poll has ended"},
		{"Internalf", Internalf("boom %d", 1), ErrInternal, "boom 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, tt.err.Kind)
			}
			if tt.err.Message != tt.msg {
				t.Errorf("expected message %q, got %q", tt.msg, tt.err.Message)
			}
			if tt.err.Err != nil {
				t.Errorf("expected no wrapped error, got %v", tt.err.Err)
			}
		})
	}
}

func TestTransport_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transport(cause)

	if err.Kind != ErrTransport {
		t.Errorf("expected ErrTransport, got %v", err.Kind)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "voting service unavailable: connection refused" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestDecode_WrapsCause(t *testing.T) {
	cause := errors.New("token is malformed")
	err := Decode("invalid session token", cause)

	if err.Kind != ErrDecode {
		t.Errorf("expected ErrDecode, got %v", err.Kind)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestInternal_WrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal(cause)

	if err.Message != "internal error" {
		t.Errorf("expected 'internal error', got %q", err.Message)
	}
	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return cause")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("sql: no rows")
	err := Wrap(cause, ErrNotFound, "token not stored")

	if err.Kind != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err.Kind)
	}
	if err.Error() != "token not stored: sql: no rows" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", Credential("bad password"))

	if KindOf(wrapped) != ErrCredential {
		t.Errorf("expected ErrCredential through fmt wrapping, got %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != ErrInternal {
		t.Error("expected plain errors to classify as internal")
	}
}

func TestIs(t *testing.T) {
	if Is(nil, ErrInternal) {
		t.Error("nil error should not match any kind")
	}
	if !Is(Rejected("Poll has ended"), ErrRejected) {
		t.Error("expected rejected error to match ErrRejected")
	}
	if Is(Rejected("x"), ErrTransport) {
		t.Error("rejected error should not match ErrTransport")
	}
}

func TestKindString(t *testing.T) {
	if ErrTransport.String() != "transport" {
		t.Errorf("expected 'transport', got %q", ErrTransport.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("unexpected unknown kind string: %q", Kind(99).String())
	}
}

type selfClassified struct{ kind Kind }

func (e selfClassified) Error() string   { return "classified" }
func (e selfClassified) ErrorKind() Kind { return e.kind }

func TestKindOf_Kinded(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", selfClassified{kind: ErrRejected})
	if got := KindOf(err); got != ErrRejected {
		t.Errorf("expected rejected, got %v", got)
	}
	if !Is(err, ErrRejected) {
		t.Error("Is should see through to the Kinded error")
	}
}
