package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/votedesk/internal/handlers"
	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/repository"
	"github.com/abrezinsky/votedesk/internal/services"
	"github.com/abrezinsky/votedesk/internal/session"
	"github.com/abrezinsky/votedesk/internal/websocket"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

// Backend is the voting backend client the app is wired to
type Backend interface {
	votingapi.Client
	SetTokenSource(ts votingapi.TokenSource)
}

// Options are the settings New needs from configuration
type Options struct {
	DBPath       string
	Port         int
	PageSize     int
	TickInterval time.Duration
	// ShareURL overrides the detected base URL for share links.
	ShareURL  string
	NoAnimate bool
	// Timeout bounds each HTTP request; zero keeps the handler default.
	Timeout time.Duration
}

// App holds all application dependencies
type App struct {
	log      logger.Logger
	handlers *handlers.Handlers
	repo     *repository.Repository
	store    *session.Store
	auth     *services.AuthService
	shareURL string
	server   *http.Server
	cancel   context.CancelFunc
}

// New creates and initializes a new application instance. The persisted
// session is recovered in the background; pages wait for it.
func New(log logger.Logger, client Backend, templatesFS, staticFS fs.FS, opts Options) (*App, error) {
	repo, err := repository.New(opts.DBPath)
	if err != nil {
		return nil, err
	}

	store := session.NewStore()
	client.SetTokenSource(store)

	// Initialize services
	authService := services.NewAuthService(log, client, store, repo)
	prefsService := services.NewPreferencesService(log, repo, opts.PageSize)
	pollService := services.NewPollService(log, client, prefsService)
	pollService.SetSessionExpirer(authService)

	// Initialize WebSocket hub with DI
	hub := websocket.New(log, pollService, opts.TickInterval)
	hub.Start()
	pollService.SetBroadcaster(hub)

	a := &App{
		log:   log,
		repo:  repo,
		store: store,
		auth:  authService,
	}
	a.shareURL = a.resolveShareURL(opts.ShareURL, opts.Port, realNetworkProvider{})

	h, err := handlers.New(
		authService,
		pollService,
		prefsService,
		templatesFS,
		handlers.NewStaticServer(staticFS),
		hub,
		log,
		handlers.Options{BaseURL: a.shareURL, NoAnimate: opts.NoAnimate, Timeout: opts.Timeout},
	)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.handlers = h
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go session.NewInitializer(store, repo, log).Run(ctx)

	return a, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Ready is closed once the persisted session has been recovered
func (a *App) Ready() <-chan struct{} {
	return a.store.Ready()
}

// ShareURL returns the base URL used in share links
func (a *App) ShareURL() string {
	return a.shareURL
}

// SignOut ends the current session, if any. It returns the email that was
// signed out, or "" when nobody was signed in.
func (a *App) SignOut(ctx context.Context) (string, error) {
	snap := a.store.Snapshot()
	if !snap.Authenticated() {
		return "", nil
	}
	if err := a.auth.Logout(ctx); err != nil {
		return "", err
	}
	return snap.Claims.Email, nil
}

// Close performs graceful shutdown of app resources
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Warn("HTTP server shutdown failed", "error", err)
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
		a.repo = nil
	}
}

// Run starts the HTTP server and blocks until Close stops it
func (a *App) Run() error {
	a.log.Info("Server starting", "addr", a.server.Addr, "share_url", a.shareURL)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// resolveShareURL picks the base URL for share links. An explicit URL wins
// and is remembered; otherwise a stored URL is reused unless it points at
// localhost, which phones scanning a QR code cannot reach.
func (a *App) resolveShareURL(configured string, port int, provider networkProvider) string {
	ctx := context.Background()

	if configured != "" {
		configured = strings.TrimRight(configured, "/")
		a.storeShareURL(ctx, configured)
		return configured
	}

	existing, _ := a.repo.GetSetting(ctx, repository.KeyShareURL)
	if existing != "" && !strings.Contains(existing, "localhost") {
		return existing
	}

	detected := fmt.Sprintf("http://%s:%d", getPreferredIP(provider), port)
	a.storeShareURL(ctx, detected)
	return detected
}

func (a *App) storeShareURL(ctx context.Context, url string) {
	if err := a.repo.SetSetting(ctx, repository.KeyShareURL, url); err != nil {
		a.log.Warn("Failed to store share URL", "error", err)
		return
	}
	a.log.Debug("Share URL set", "url", url)
}

// networkInterface wraps net.Interface for testing
type networkInterface interface {
	Flags() net.Flags
	Addrs() ([]net.Addr, error)
}

// realInterface wraps a real net.Interface
type realInterface struct {
	iface net.Interface
}

func (r realInterface) Flags() net.Flags {
	return r.iface.Flags
}

func (r realInterface) Addrs() ([]net.Addr, error) {
	return r.iface.Addrs()
}

// networkProvider is an interface for getting network interfaces (for testing)
type networkProvider interface {
	Interfaces() ([]networkInterface, error)
}

// realNetworkProvider implements networkProvider using actual net package
type realNetworkProvider struct{}

func (realNetworkProvider) Interfaces() ([]networkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]networkInterface, len(ifaces))
	for i, iface := range ifaces {
		result[i] = realInterface{iface: iface}
	}
	return result, nil
}

// getPreferredIP returns the best IPv4 address for LAN access, preferring
// private ranges and falling back to localhost.
func getPreferredIP(provider networkProvider) string {
	ifaces, err := provider.Interfaces()
	if err != nil {
		return "localhost"
	}

	var candidates []net.IP
	for _, iface := range ifaces {
		flags := iface.Flags()
		if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			candidates = append(candidates, ip)
		}
	}

	for _, ip := range candidates {
		if ip.IsPrivate() {
			return ip.String()
		}
	}
	if len(candidates) > 0 {
		return candidates[0].String()
	}
	return "localhost"
}
