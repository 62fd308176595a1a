package handlers

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abrezinsky/votedesk/internal/guard"
	"github.com/abrezinsky/votedesk/internal/models"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// recoverer renders the fallback error view for any panic that escapes a handler
func (h *Handlers) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.Log.Error("Unhandled panic",
				"panic", rec,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"stack", string(debug.Stack()))

			if h.templates == nil {
				respondError(w, ErrInternalServer)
				return
			}
			h.render(w, http.StatusInternalServerError, h.templates.Error, PageData{
				Title:     "Something went wrong",
				NoAnimate: h.opts.NoAnimate,
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// guardPage resolves the request path against the route table before the
// page handler runs
func (h *Handlers) guardPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := h.Auth.Current(r.Context())
		decision := h.Routes.Resolve(r.URL.Path, snap)
		switch decision.Action {
		case guard.Hold:
			h.renderLoading(w, r)
		case guard.Redirect:
			http.Redirect(w, r, decision.Target, http.StatusFound)
		default:
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), snap)))
		}
	})
}

// requireRole gates API routes on the session, answering in JSON
func (h *Handlers) requireRole(roles ...models.Role) func(http.Handler) http.Handler {
	route := guard.Route{Access: guard.Protected, Roles: roles}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := h.Auth.Current(r.Context())
			switch {
			case !snap.Initialized:
				w.Header().Set("Retry-After", "1")
				respondError(w, ErrLoading)
			case !snap.Authenticated():
				respondError(w, ErrUnauthorized)
			case !route.Allows(snap.Claims.Role):
				respondError(w, ErrForbidden)
			default:
				next.ServeHTTP(w, r.WithContext(withSession(r.Context(), snap)))
			}
		})
	}
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger) // Custom conditional HTTP logger
	r.Use(h.recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Timeout(h.opts.Timeout))

	// Static files (served from embedded filesystem)
	if h.staticServer != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", h.staticServer))
	}

	// WebSocket
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWs)
	}

	r.Post("/logout", h.handleLogout)

	// Pages, resolved through the route table
	r.Group(func(r chi.Router) {
		r.Use(h.guardPage)

		r.Get("/", h.handleRoot)

		r.Get(guard.LoginPath, h.handleLoginPage)
		r.Post(guard.LoginPath, h.handleLogin)
		r.Get(guard.RegisterPath, h.handleRegisterPage)
		r.Post(guard.RegisterPath, h.handleRegister)
		r.Get(guard.ForgotPath, h.handleForgotPage)
		r.Post(guard.ForgotPath, h.handleForgot)

		r.Get(guard.PollsPath, h.handlePolls)
		r.Get(guard.PollsPath+"/{id}", h.handlePoll)
		r.Post(guard.PollsPath+"/{id}", h.handlePollVote)
		r.Get(guard.UnauthorizedPath, h.handleUnauthorized)
		r.Get(guard.UserHomePath, h.handleHome)

		r.Get(guard.AdminHomePath, h.handleAdminDashboard)
		r.Get("/admin/polls/{id}", h.handleAdminResults)

		r.NotFound(h.handleRoot)
	})

	// Public API
	r.Get("/api/session", h.handleAPISession)
	r.Get("/api/polls", h.handleAPIListPolls)
	r.Get("/api/polls/{id}/status", h.handleAPIPollStatus)
	r.Get("/api/polls/{id}/qr", h.handleAPIPollQR)
	r.Get("/api/preferences", h.handleAPIGetPreferences)
	r.Put("/api/preferences", h.handleAPISetPreferences)

	// Voting API (voters and candidates)
	r.Group(func(r chi.Router) {
		r.Use(h.requireRole(models.RoleVoter, models.RoleCandidate))
		r.Post("/api/polls/{id}/vote", h.handleAPIVote)
	})

	// Admin API (protected)
	r.Group(func(r chi.Router) {
		r.Use(h.requireRole(models.RoleAdmin))
		r.Get("/api/admin/polls/{id}/results.csv", h.handleAPIResultsCSV)
	})

	return r
}
