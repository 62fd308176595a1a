package handlers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/abrezinsky/votedesk/internal/guard"
	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/services"
	"github.com/abrezinsky/votedesk/internal/session"
	"github.com/abrezinsky/votedesk/internal/tokens"
	"github.com/abrezinsky/votedesk/internal/websocket"
)

// NewStaticServer creates a static file server from an fs.FS
func NewStaticServer(staticFS fs.FS) http.Handler {
	return http.FileServer(http.FS(staticFS))
}

// Options are the handler settings that come from configuration
type Options struct {
	// BaseURL is the address pages are served on, used in share links.
	BaseURL   string
	NoAnimate bool
	Timeout   time.Duration
}

// PageData holds the data every page template receives
type PageData struct {
	Title     string
	ActiveNav string
	User      *tokens.Claims
	Home      string
	Notice    string
	Error     string
	Fields    map[string][]string
	NoAnimate bool
}

// Templates holds all parsed HTML templates
type Templates struct {
	Login          *template.Template
	Register       *template.Template
	Forgot         *template.Template
	Polls          *template.Template
	Poll           *template.Template
	Home           *template.Template
	AdminDashboard *template.Template
	AdminResults   *template.Template
	Unauthorized   *template.Template
	Loading        *template.Template
	Error          *template.Template
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Auth         services.AuthServicer
	Polls        services.PollServicer
	Prefs        services.PreferencesServicer
	Hub          *websocket.Hub
	Routes       *guard.Table
	Log          logger.Logger
	opts         Options
	templates    *Templates
	staticServer http.Handler
}

// New creates a new Handlers instance with all dependencies
func New(
	authSvc services.AuthServicer,
	polls services.PollServicer,
	prefs services.PreferencesServicer,
	templatesFS fs.FS,
	staticServer http.Handler,
	hub *websocket.Hub,
	log logger.Logger,
	opts Options,
) (*Handlers, error) {
	templates, err := loadTemplates(templatesFS)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	return &Handlers{
		Auth:         authSvc,
		Polls:        polls,
		Prefs:        prefs,
		Hub:          hub,
		Routes:       guard.DefaultTable(),
		Log:          log,
		opts:         opts,
		templates:    templates,
		staticServer: staticServer,
	}, nil
}

// Options returns the settings the handlers were built with, defaults applied
func (h *Handlers) Options() Options {
	return h.opts
}

// NewForTesting creates a Handlers instance without loading templates (for testing API endpoints)
func NewForTesting(authSvc services.AuthServicer, polls services.PollServicer, prefs services.PreferencesServicer) *Handlers {
	return &Handlers{
		Auth:   authSvc,
		Polls:  polls,
		Prefs:  prefs,
		Routes: guard.DefaultTable(),
		Log:    logger.Discard(),
		opts:   Options{BaseURL: "http://localhost:8082", Timeout: 60 * time.Second},
		// templates left nil - API endpoints don't use templates
	}
}

// loadTemplates parses all templates once at startup
func loadTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{}

	pages := []struct {
		dst   **template.Template
		name  string
		files []string
	}{
		{&t.Login, "login", []string{"login.html"}},
		{&t.Register, "register", []string{"otp.html", "register.html"}},
		{&t.Forgot, "forgot", []string{"otp.html", "forgot.html"}},
		{&t.Polls, "polls", []string{"polls.html"}},
		{&t.Poll, "poll", []string{"poll.html"}},
		{&t.Home, "home", []string{"home.html"}},
		{&t.AdminDashboard, "admin dashboard", []string{"admin/dashboard.html"}},
		{&t.AdminResults, "admin results", []string{"admin/results.html"}},
		{&t.Unauthorized, "unauthorized", []string{"unauthorized.html"}},
		{&t.Loading, "loading", []string{"loading.html"}},
		{&t.Error, "error", []string{"error.html"}},
	}

	for _, p := range pages {
		files := append([]string{"layout.html"}, p.files...)
		tmpl, err := template.New("layout").Funcs(templateFuncs()).ParseFS(templatesFS, files...)
		if err != nil {
			return nil, fmt.Errorf("%s template: %w", p.name, err)
		}
		*p.dst = tmpl
	}

	return t, nil
}

type sessionKey struct{}

func withSession(ctx context.Context, snap session.Snapshot) context.Context {
	return context.WithValue(ctx, sessionKey{}, snap)
}

// sessionFrom returns the snapshot the guard decided on, or the live session
func (h *Handlers) sessionFrom(r *http.Request) session.Snapshot {
	if snap, ok := r.Context().Value(sessionKey{}).(session.Snapshot); ok {
		return snap
	}
	return h.Auth.Current(r.Context())
}

// page builds the common template data for r
func (h *Handlers) page(r *http.Request, title, nav string) PageData {
	data := PageData{Title: title, ActiveNav: nav, NoAnimate: h.opts.NoAnimate}
	if snap := h.sessionFrom(r); snap.Authenticated() {
		data.User = snap.Claims
		data.Home = guard.HomeFor(snap.Claims.Role)
	}
	return data
}

// render executes tmpl into a buffer so a template failure never leaves a
// half-written page
func (h *Handlers) render(w http.ResponseWriter, status int, tmpl *template.Template, data interface{}) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.Log.Error("Template render failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderLoading shows the loading view until the session is initialized
func (h *Handlers) renderLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Refresh", "1")
	w.Header().Set("Retry-After", "1")
	h.render(w, http.StatusServiceUnavailable, h.templates.Loading, PageData{Title: "Loading", NoAnimate: h.opts.NoAnimate})
}
