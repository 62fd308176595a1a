package session

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/repository"
	"github.com/abrezinsky/votedesk/internal/tokens"
)

// TokenStore persists the bearer token between runs
type TokenStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Initializer recovers the persisted session exactly once per process.
type Initializer struct {
	store  *Store
	tokens TokenStore
	log    logger.Logger
	now    func() time.Time
	once   sync.Once
}

// NewInitializer creates an initializer for store backed by ts.
func NewInitializer(store *Store, ts TokenStore, log logger.Logger) *Initializer {
	return &Initializer{
		store:  store,
		tokens: ts,
		log:    log,
		now:    time.Now,
	}
}

// SetClock overrides the wall clock. Used by tests.
func (i *Initializer) SetClock(now func() time.Time) {
	i.now = now
}

// Run recovers the session. Calls after the first are no-ops.
// The store is marked initialized on every path, including storage failures.
func (i *Initializer) Run(ctx context.Context) {
	i.once.Do(func() {
		defer i.store.markInitialized()
		i.recover(ctx)
	})
}

func (i *Initializer) recover(ctx context.Context) {
	i.store.Clear()

	token, err := i.tokens.GetSetting(ctx, repository.KeyAuthToken)
	if stderrors.Is(err, repository.ErrNotFound) || (err == nil && token == "") {
		i.log.Debug("No persisted session")
		return
	}
	if err != nil {
		i.log.Error("Failed to read persisted session, starting signed out", "error", err)
		return
	}

	claims, err := tokens.Decode(token)
	if err != nil {
		i.log.Warn("Discarding undecodable session token", "error", err)
		i.discard(ctx)
		return
	}
	if claims.Expired(i.now()) {
		i.log.Info("Discarding expired session", "email", claims.Email, "expired_at", claims.ExpiresAt)
		i.discard(ctx)
		return
	}

	if err := i.store.SetAuthenticated(token, claims); err != nil {
		i.log.Error("Failed to restore session", "error", err)
		return
	}
	i.log.Info("Session restored", "email", claims.Email, "role", claims.Role)
}

func (i *Initializer) discard(ctx context.Context) {
	if err := i.tokens.DeleteSetting(ctx, repository.KeyAuthToken); err != nil {
		i.log.Warn("Failed to delete persisted session token", "error", err)
	}
}
