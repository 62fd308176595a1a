package handlers

import (
	"context"
	stderrors "errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/abrezinsky/votedesk/internal/guard"
	"github.com/abrezinsky/votedesk/internal/services"
	"github.com/abrezinsky/votedesk/internal/validate"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

// Steps of the OTP-verified account flows
const (
	StepEmail    = 1
	StepVerify   = 2
	StepComplete = 3
)

// LoginPageData holds data for the login template
type LoginPageData struct {
	PageData
	Email string
}

// OTPPageData holds data for the register and forgot-password templates
type OTPPageData struct {
	PageData
	Action   string
	Step     int
	Email    string
	Name     string
	ResendIn int
}

// otpFlow describes one of the email-verified account flows
type otpFlow struct {
	purpose  votingapi.OTPPurpose
	path     string
	title    string
	tmpl     func(h *Handlers) *template.Template
	complete func(h *Handlers, ctx context.Context, r *http.Request) error
	done     string
}

var registerFlow = otpFlow{
	purpose: votingapi.PurposeRegister,
	path:    guard.RegisterPath,
	title:   "Create account",
	tmpl:    func(h *Handlers) *template.Template { return h.templates.Register },
	complete: func(h *Handlers, ctx context.Context, r *http.Request) error {
		return h.Auth.CompleteRegistration(ctx, services.RegistrationForm{
			Name:            r.FormValue("name"),
			Email:           r.FormValue("email"),
			Password:        r.FormValue("password"),
			ConfirmPassword: r.FormValue("confirmPassword"),
			AcceptTerms:     r.FormValue("terms") != "",
		})
	},
	done: guard.LoginPath + "?registered=1",
}

var forgotFlow = otpFlow{
	purpose: votingapi.PurposePasswordReset,
	path:    guard.ForgotPath,
	title:   "Reset password",
	tmpl:    func(h *Handlers) *template.Template { return h.templates.Forgot },
	complete: func(h *Handlers, ctx context.Context, r *http.Request) error {
		return h.Auth.CompletePasswordReset(ctx, services.PasswordResetForm{
			Email:           r.FormValue("email"),
			Password:        r.FormValue("password"),
			ConfirmPassword: r.FormValue("confirmPassword"),
		})
	},
	done: guard.LoginPath + "?reset=1",
}

// handleLoginPage renders the login form
func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := LoginPageData{PageData: h.page(r, "Sign in", "login")}
	switch {
	case r.URL.Query().Get("registered") != "":
		data.Notice = "Your account is ready. Please sign in."
	case r.URL.Query().Get("reset") != "":
		data.Notice = "Your password has been changed. Please sign in."
	}
	h.render(w, http.StatusOK, h.templates.Login, data)
}

// handleLogin processes login form submission
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	claims, err := h.Auth.Login(r.Context(), email, r.FormValue("password"))
	if err != nil {
		data := LoginPageData{PageData: h.page(r, "Sign in", "login"), Email: email}
		data.Error = userMessage(err)
		data.Fields = validate.ProblemsOf(err)
		h.render(w, http.StatusOK, h.templates.Login, data)
		return
	}

	http.Redirect(w, r, guard.HomeFor(claims.Role), http.StatusFound)
}

// handleLogout clears the session and redirects to login
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context()); err != nil {
		h.Log.Warn("Logout failed", "error", err)
	}
	http.Redirect(w, r, guard.LoginPath, http.StatusFound)
}

func (h *Handlers) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderOTP(w, r, registerFlow, StepEmail, "", nil)
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	h.handleOTPStep(w, r, registerFlow)
}

func (h *Handlers) handleForgotPage(w http.ResponseWriter, r *http.Request) {
	h.renderOTP(w, r, forgotFlow, StepEmail, "", nil)
}

func (h *Handlers) handleForgot(w http.ResponseWriter, r *http.Request) {
	h.handleOTPStep(w, r, forgotFlow)
}

// handleOTPStep advances a flow by one step. The "action" form field names
// the step being submitted.
func (h *Handlers) handleOTPStep(w http.ResponseWriter, r *http.Request, flow otpFlow) {
	ctx := r.Context()
	email := strings.TrimSpace(r.FormValue("email"))

	switch r.FormValue("action") {
	case "send":
		if err := h.Auth.RequestOTP(ctx, flow.purpose, email); err != nil {
			h.renderOTP(w, r, flow, StepEmail, "", err)
			return
		}
		h.renderOTP(w, r, flow, StepVerify, "We sent a 4-digit code to "+email+".", nil)

	case "resend":
		if err := h.Auth.RequestOTP(ctx, flow.purpose, email); err != nil {
			h.renderOTP(w, r, flow, StepVerify, "", err)
			return
		}
		h.renderOTP(w, r, flow, StepVerify, "A new code is on its way.", nil)

	case "verify":
		if err := h.Auth.VerifyOTP(ctx, flow.purpose, email, r.FormValue("otp")); err != nil {
			h.renderOTP(w, r, flow, StepVerify, "", err)
			return
		}
		h.renderOTP(w, r, flow, StepComplete, "Email verified.", nil)

	case "complete":
		err := flow.complete(h, ctx, r)
		if stderrors.Is(err, services.ErrNotVerified) {
			h.renderOTP(w, r, flow, StepVerify, "", err)
			return
		}
		if err != nil {
			h.renderOTP(w, r, flow, StepComplete, "", err)
			return
		}
		http.Redirect(w, r, flow.done, http.StatusFound)

	default:
		h.renderOTP(w, r, flow, StepEmail, "", BadRequest("Unknown step"))
	}
}

func (h *Handlers) renderOTP(w http.ResponseWriter, r *http.Request, flow otpFlow, step int, notice string, err error) {
	email := strings.TrimSpace(r.FormValue("email"))
	data := OTPPageData{
		PageData: h.page(r, flow.title, ""),
		Action:   flow.path,
		Step:     step,
		Email:    email,
		Name:     r.FormValue("name"),
	}
	data.Notice = notice
	if err != nil {
		data.Error = userMessage(err)
		data.Fields = validate.ProblemsOf(err)
	}
	if email != "" {
		data.ResendIn = int(h.Auth.ResendIn(flow.purpose, email).Seconds())
	}
	h.render(w, http.StatusOK, flow.tmpl(h), data)
}
