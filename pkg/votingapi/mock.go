package votingapi

import (
	"context"
	"sync"
	"time"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/models"
)

// Vote is a vote recorded by MockClient
type Vote struct {
	PollID      string
	CandidateID string
	Token       string
}

// OTPRequest is an OTP send or verify recorded by MockClient
type OTPRequest struct {
	Email   string
	OTP     string
	Purpose OTPPurpose
}

// MockClient is an in-memory voting backend for testing
type MockClient struct {
	mu sync.Mutex

	baseURL    string
	tokens     TokenSource
	polls      []models.Poll
	candidates map[string][]models.Candidate
	logins     map[string]string // email -> token
	validOTP   string

	loginErr      error
	registerErr   error
	otpSendErr    error
	otpVerifyErr  error
	resetErr      error
	listErr       error
	getErr        error
	candidatesErr error
	voteErr       error

	// castHook runs inside CastVote before the result is returned.
	castHook func(pollID, candidateID string)

	Votes        []Vote
	OTPsSent     []OTPRequest
	OTPsVerified []OTPRequest
	Registered   []RegisterRequest
	Resets       []ResetPasswordRequest
	ListRequests []ListRequest
	Calls        int
}

// MockOption configures the mock client
type MockOption func(*MockClient)

// WithPolls sets the polls to return
func WithPolls(polls []models.Poll) MockOption {
	return func(m *MockClient) {
		m.polls = polls
	}
}

// WithCandidates sets the candidates for a poll
func WithCandidates(pollID string, candidates []models.Candidate) MockOption {
	return func(m *MockClient) {
		m.candidates[pollID] = candidates
	}
}

// WithLogin makes email log in with token
func WithLogin(email, token string) MockOption {
	return func(m *MockClient) {
		m.logins[email] = token
	}
}

// WithValidOTP sets the only code VerifyOTP accepts
func WithValidOTP(otp string) MockOption {
	return func(m *MockClient) {
		m.validOTP = otp
	}
}

// WithLoginError sets an error to return from Login
func WithLoginError(err error) MockOption {
	return func(m *MockClient) {
		m.loginErr = err
	}
}

// WithRegisterError sets an error to return from Register
func WithRegisterError(err error) MockOption {
	return func(m *MockClient) {
		m.registerErr = err
	}
}

// WithOTPSendError sets an error to return from both OTP request calls
func WithOTPSendError(err error) MockOption {
	return func(m *MockClient) {
		m.otpSendErr = err
	}
}

// WithResetError sets an error to return from ResetPassword
func WithResetError(err error) MockOption {
	return func(m *MockClient) {
		m.resetErr = err
	}
}

// WithListError sets an error to return from ListPolls
func WithListError(err error) MockOption {
	return func(m *MockClient) {
		m.listErr = err
	}
}

// WithGetPollError sets an error to return from GetPoll
func WithGetPollError(err error) MockOption {
	return func(m *MockClient) {
		m.getErr = err
	}
}

// WithCandidatesError sets an error to return from ListCandidatesWithVotes
func WithCandidatesError(err error) MockOption {
	return func(m *MockClient) {
		m.candidatesErr = err
	}
}

// WithVoteError sets an error to return from CastVote
func WithVoteError(err error) MockOption {
	return func(m *MockClient) {
		m.voteErr = err
	}
}

// WithCastHook runs fn during CastVote, for observing in-flight state
func WithCastHook(fn func(pollID, candidateID string)) MockOption {
	return func(m *MockClient) {
		m.castHook = fn
	}
}

// NewMockClient creates a new mock backend
func NewMockClient(opts ...MockOption) *MockClient {
	m := &MockClient{
		baseURL:    "http://mock-voting.local",
		polls:      DefaultMockPolls(),
		candidates: DefaultMockCandidates(),
		logins:     map[string]string{},
		validOTP:   "1234",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTokenSource records the token source so votes can be attributed
func (m *MockClient) SetTokenSource(ts TokenSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = ts
}

// SetVoteError changes the CastVote error after construction
func (m *MockClient) SetVoteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voteErr = err
}

// BaseURL returns the configured base URL
func (m *MockClient) BaseURL() string {
	return m.baseURL
}

func (m *MockClient) Login(ctx context.Context, email, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.loginErr != nil {
		return "", m.loginErr
	}
	token, ok := m.logins[email]
	if !ok {
		return "", &APIError{Status: 401, Code: "UNAUTHORIZED", Message: "Invalid email or password"}
	}
	return token, nil
}

func (m *MockClient) Register(ctx context.Context, r RegisterRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.registerErr != nil {
		return m.registerErr
	}
	m.Registered = append(m.Registered, r)
	return nil
}

func (m *MockClient) sendOTP(email string, purpose OTPPurpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.otpSendErr != nil {
		return m.otpSendErr
	}
	m.OTPsSent = append(m.OTPsSent, OTPRequest{Email: email, Purpose: purpose})
	return nil
}

func (m *MockClient) RequestRegistrationOTP(ctx context.Context, email string) error {
	return m.sendOTP(email, PurposeRegister)
}

func (m *MockClient) RequestPasswordResetOTP(ctx context.Context, email string) error {
	return m.sendOTP(email, PurposePasswordReset)
}

func (m *MockClient) VerifyOTP(ctx context.Context, email, otp string, purpose OTPPurpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.otpVerifyErr != nil {
		return m.otpVerifyErr
	}
	m.OTPsVerified = append(m.OTPsVerified, OTPRequest{Email: email, OTP: otp, Purpose: purpose})
	if otp != m.validOTP {
		return &APIError{Status: 400, Code: "INVALID_OTP", Message: "Invalid or expired OTP"}
	}
	return nil
}

func (m *MockClient) ResetPassword(ctx context.Context, r ResetPasswordRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.resetErr != nil {
		return m.resetErr
	}
	m.Resets = append(m.Resets, r)
	return nil
}

// ListPolls pages through the configured polls. The filter is recorded but not applied.
func (m *MockClient) ListPolls(ctx context.Context, r ListRequest) (PollPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.ListRequests = append(m.ListRequests, r)
	if m.listErr != nil {
		return PollPage{}, m.listErr
	}

	total := len(m.polls)
	start := min(max((r.Page-1)*r.Limit, 0), total)
	end := min(start+r.Limit, total)
	out := make([]models.Poll, end-start)
	copy(out, m.polls[start:end])
	return PollPage{Polls: out, Total: total}, nil
}

func (m *MockClient) GetPoll(ctx context.Context, id string) (models.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.getErr != nil {
		return models.Poll{}, m.getErr
	}
	for _, p := range m.polls {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Poll{}, &APIError{Status: 404, Code: "NOT_FOUND", Message: "Poll not found"}
}

func (m *MockClient) ListCandidatesWithVotes(ctx context.Context, pollID string) ([]models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.candidatesErr != nil {
		return nil, m.candidatesErr
	}
	out := make([]models.Candidate, len(m.candidates[pollID]))
	copy(out, m.candidates[pollID])
	return out, nil
}

// CastVote records the vote and increments the candidate's stored count.
func (m *MockClient) CastVote(ctx context.Context, pollID, candidateID string) (VoteResult, error) {
	m.mu.Lock()
	hook := m.castHook
	m.mu.Unlock()
	if hook != nil {
		hook(pollID, candidateID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.voteErr != nil {
		return VoteResult{}, m.voteErr
	}

	token := ""
	if m.tokens != nil {
		token = m.tokens.Token()
	}
	m.Votes = append(m.Votes, Vote{PollID: pollID, CandidateID: candidateID, Token: token})
	for i := range m.candidates[pollID] {
		if m.candidates[pollID][i].ID == candidateID {
			m.candidates[pollID][i].VoteCount++
		}
	}
	return VoteResult{Message: "Vote cast successfully"}, nil
}

// DefaultMockPolls returns one upcoming, one active and one ended poll
// relative to the current time.
func DefaultMockPolls() []models.Poll {
	now := time.Now().UTC().Truncate(time.Second)
	return []models.Poll{
		{ID: "poll-active", Title: "2024 Presidential Election", Description: "Cast your vote for the next president",
			Category: "National Election", StartTime: now.Add(-24 * time.Hour), EndTime: now.Add(7 * 24 * time.Hour), TotalVotes: 30},
		{ID: "poll-upcoming", Title: "City Council", Description: "Choose your council representative",
			Category: "Local Election", StartTime: now.Add(48 * time.Hour), EndTime: now.Add(10 * 24 * time.Hour)},
		{ID: "poll-ended", Title: "School Board", Description: "Results are final",
			Category: "Local Election", StartTime: now.Add(-30 * 24 * time.Hour), EndTime: now.Add(-24 * time.Hour), TotalVotes: 12},
	}
}

// DefaultMockCandidates returns candidates for the default polls
func DefaultMockCandidates() map[string][]models.Candidate {
	return map[string][]models.Candidate{
		"poll-active": {
			{ID: "cand-1", Name: "John Smith", Party: "Democratic Party", VoteCount: 18},
			{ID: "cand-2", Name: "Sarah Johnson", Party: "Republican Party", VoteCount: 10},
			{ID: "cand-3", Name: "Michael Brown", Party: "Independent", VoteCount: 2},
		},
		"poll-upcoming": {
			{ID: "cand-4", Name: "Emily Davis"},
			{ID: "cand-5", Name: "Robert Wilson"},
		},
		"poll-ended": {
			{ID: "cand-6", Name: "Linda Martinez", VoteCount: 7},
			{ID: "cand-7", Name: "James Taylor", VoteCount: 5},
		},
	}
}

// PollEndedError is the backend's refusal for a vote after the poll closed
func PollEndedError() error {
	return &APIError{Status: 400, Code: CodePollEnded, Message: "Voting for this poll has ended"}
}

// AlreadyVotedError is the backend's refusal for a repeat vote
func AlreadyVotedError() error {
	return &APIError{Status: 409, Code: CodeAlreadyVoted, Message: "You have already voted in this poll"}
}

// TransportError simulates an unreachable backend
func TransportError() error {
	return errors.Transport(context.DeadlineExceeded)
}

// Ensure MockClient implements Client
var _ Client = (*MockClient)(nil)
