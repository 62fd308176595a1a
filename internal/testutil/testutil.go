package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/repository"
)

// NewTestRepository creates a new in-memory repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// NewToken signs a backend-shaped session token for the given role expiring at exp.
// The signing key is arbitrary since tokens are decoded without verification.
func NewToken(t *testing.T, role models.Role, exp time.Time) string {
	t.Helper()
	return SignClaims(t, jwt.MapClaims{
		"id":    "u-" + string(role),
		"email": "user@example.com",
		"name":  "Test User",
		"role":  string(role),
		"iat":   exp.Add(-time.Hour).Unix(),
		"exp":   exp.Unix(),
	})
}

// SignClaims signs arbitrary claims, for tests that need malformed tokens.
func SignClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}
