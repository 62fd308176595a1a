// Package validate checks user input before it is sent to the voting backend.
package validate

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/abrezinsky/votedesk/internal/errors"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	otpPattern   = regexp.MustCompile(`^[0-9]{4}$`)
)

// PasswordSpecials are the characters that satisfy the special-character rule.
const PasswordSpecials = `!@#$%^&*(),.?":{}|<>`

const MinPasswordLength = 8

// Problems collects field-level validation messages in the order found.
type Problems struct {
	fields   []string
	messages map[string][]string
}

// Add records msg against field.
func (p *Problems) Add(field, msg string) {
	if p.messages == nil {
		p.messages = map[string][]string{}
	}
	if _, ok := p.messages[field]; !ok {
		p.fields = append(p.fields, field)
	}
	p.messages[field] = append(p.messages[field], msg)
}

// Empty reports whether no problems were recorded.
func (p *Problems) Empty() bool {
	return len(p.fields) == 0
}

// Field returns the messages recorded for field.
func (p *Problems) Field(field string) []string {
	return p.messages[field]
}

// Map returns field to messages, for rendering inline errors.
func (p *Problems) Map() map[string][]string {
	out := make(map[string][]string, len(p.messages))
	for k, v := range p.messages {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Err returns a validation error naming the first problem, or nil.
func (p *Problems) Err() error {
	if p.Empty() {
		return nil
	}
	first := p.fields[0]
	return &Error{Problems: p, err: errors.Validation(p.messages[first][0])}
}

// Error is a validation failure carrying every problem found
type Error struct {
	Problems *Problems
	err      *errors.Error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

// Email checks address syntax.
func Email(p *Problems, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		p.Add("email", "Email is required")
	case !emailPattern.MatchString(email):
		p.Add("email", "Please enter a valid email address")
	}
}

// PasswordRules returns one message per unmet password requirement.
func PasswordRules(password string) []string {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(PasswordSpecials, r):
			hasSpecial = true
		}
	}

	var unmet []string
	if len([]rune(password)) < MinPasswordLength {
		unmet = append(unmet, "Password must be at least 8 characters long")
	}
	if !hasUpper {
		unmet = append(unmet, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		unmet = append(unmet, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		unmet = append(unmet, "Password must contain at least one number")
	}
	if !hasSpecial {
		unmet = append(unmet, "Password must contain at least one special character")
	}
	return unmet
}

// Password checks strength. Each unmet rule is reported separately.
func Password(p *Problems, password string) {
	if password == "" {
		p.Add("password", "Password is required")
		return
	}
	for _, msg := range PasswordRules(password) {
		p.Add("password", msg)
	}
}

// Confirmation checks that confirm repeats password.
func Confirmation(p *Problems, password, confirm string) {
	if password != confirm {
		p.Add("confirmPassword", "Passwords do not match")
	}
}

// OTP checks for exactly four digits.
func OTP(p *Problems, otp string) {
	if !otpPattern.MatchString(strings.TrimSpace(otp)) {
		p.Add("otp", "Please enter the 4-digit code")
	}
}

// Name checks that a display name was given.
func Name(p *Problems, name string) {
	if strings.TrimSpace(name) == "" {
		p.Add("name", "Name is required")
	}
}

// Terms checks that the terms were accepted.
func Terms(p *Problems, accepted bool) {
	if !accepted {
		p.Add("terms", "You must accept the terms and conditions")
	}
}

// Login validates the sign-in form. Only presence of the password is checked.
func Login(email, password string) error {
	var p Problems
	Email(&p, email)
	if password == "" {
		p.Add("password", "Password is required")
	}
	return p.Err()
}

// Registration validates the final registration step.
func Registration(name, email, password, confirm string, terms bool) error {
	var p Problems
	Name(&p, name)
	Email(&p, email)
	Password(&p, password)
	Confirmation(&p, password, confirm)
	Terms(&p, terms)
	return p.Err()
}

// PasswordReset validates the final reset step. The code has already been
// verified by then.
func PasswordReset(email, password, confirm string) error {
	var p Problems
	Email(&p, email)
	Password(&p, password)
	Confirmation(&p, password, confirm)
	return p.Err()
}

// ProblemsOf extracts the problems carried by err, if any.
func ProblemsOf(err error) map[string][]string {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Problems.Map()
	}
	return nil
}
