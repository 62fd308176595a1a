package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/tokens"
)

func TestStore_StartsEmpty(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()

	assert.False(t, snap.Initialized)
	assert.False(t, snap.Authenticated())
	assert.Empty(t, s.Token())

	select {
	case <-s.Ready():
		t.Fatal("ready must not be closed before initialization")
	default:
	}
}

func TestStore_SetAuthenticatedAndClear(t *testing.T) {
	s := NewStore()
	claims := tokens.Claims{ID: "1", Email: "a@b.co", Role: models.RoleVoter, ExpiresAt: time.Now().Add(time.Hour)}

	require.NoError(t, s.SetAuthenticated("tok", claims))
	snap := s.Snapshot()
	require.True(t, snap.Authenticated())
	assert.Equal(t, "tok", snap.Token)
	assert.Equal(t, models.RoleVoter, snap.Claims.Role)
	assert.Equal(t, "tok", s.Token())

	s.Clear()
	snap = s.Snapshot()
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.Claims)
}

func TestStore_RejectsEmptyToken(t *testing.T) {
	s := NewStore()
	err := s.SetAuthenticated("", tokens.Claims{Role: models.RoleAdmin})

	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.False(t, s.Snapshot().Authenticated(), "session must never be partially set")
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetAuthenticated("tok", tokens.Claims{Role: models.RoleVoter}))

	snap := s.Snapshot()
	snap.Claims.Role = models.RoleAdmin

	assert.Equal(t, models.RoleVoter, s.Snapshot().Claims.Role)
}

func TestStore_MarkInitializedIsIdempotent(t *testing.T) {
	s := NewStore()
	s.markInitialized()
	s.markInitialized()

	<-s.Ready()
	assert.True(t, s.Snapshot().Initialized)
}
