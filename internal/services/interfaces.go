package services

import (
	"context"
	"io"
	"time"

	"github.com/abrezinsky/votedesk/internal/pagination"
	"github.com/abrezinsky/votedesk/internal/pollstatus"
	"github.com/abrezinsky/votedesk/internal/session"
	"github.com/abrezinsky/votedesk/internal/tokens"
	"github.com/abrezinsky/votedesk/internal/voteflow"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

// AuthServicer defines the interface for session and account operations
type AuthServicer interface {
	Login(ctx context.Context, email, password string) (tokens.Claims, error)
	Logout(ctx context.Context) error
	Current(ctx context.Context) session.Snapshot
	Expire(ctx context.Context)
	RequestOTP(ctx context.Context, purpose votingapi.OTPPurpose, email string) error
	VerifyOTP(ctx context.Context, purpose votingapi.OTPPurpose, email, otp string) error
	CompleteRegistration(ctx context.Context, form RegistrationForm) error
	CompletePasswordReset(ctx context.Context, form PasswordResetForm) error
	ResendIn(purpose votingapi.OTPPurpose, email string) time.Duration
}

// PollServicer defines the interface for poll browsing and voting
type PollServicer interface {
	ListPolls(ctx context.Context, q pagination.Query) (*PollListing, error)
	NearestPage(q pagination.Query) int
	OpenView(ctx context.Context, pollID string) (*voteflow.View, error)
	AcquireView(ctx context.Context, pollID string) (*voteflow.View, error)
	ReleaseView(pollID string)
	CastVote(ctx context.Context, pollID, candidateID string) (voteflow.Result, error)
	Status(ctx context.Context, pollID string) (pollstatus.Snapshot, error)
	ShareQR(ctx context.Context, pollID, baseURL string) ([]byte, error)
	Overview(ctx context.Context) (*Overview, error)
	Results(ctx context.Context, pollID string) (*PollResults, error)
	ExportResultsCSV(ctx context.Context, pollID string, w io.Writer) error
}

// PreferencesServicer defines the interface for local user preferences
type PreferencesServicer interface {
	PageSize(ctx context.Context) int
	SetPageSize(ctx context.Context, size int) error
}

// Broadcaster defines the interface for pushing poll updates to connected views
type Broadcaster interface {
	BroadcastPoll(pollID, msgType string, payload interface{})
}

// SessionExpirer clears the session after the backend rejects its token
type SessionExpirer interface {
	Expire(ctx context.Context)
}

// Ensure services implement their interfaces
var (
	_ AuthServicer        = (*AuthService)(nil)
	_ PollServicer        = (*PollService)(nil)
	_ PreferencesServicer = (*PreferencesService)(nil)
	_ SessionExpirer      = (*AuthService)(nil)
)
