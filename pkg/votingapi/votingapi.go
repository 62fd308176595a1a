// Package votingapi provides a client for the online voting platform's HTTP backend.
package votingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/models"
)

// Error codes the backend may attach to a failure
const (
	CodePollEnded    = "POLL_ENDED"
	CodeAlreadyVoted = "ALREADY_VOTED"
	CodeNotStarted   = "POLL_NOT_STARTED"
)

// OTPPurpose says which flow an OTP verifies
type OTPPurpose string

const (
	PurposeRegister      OTPPurpose = "REGISTER"
	PurposePasswordReset OTPPurpose = "PASSWORD_RESET"
)

// RegisterRequest is the final registration step
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	OTP      string `json:"otp"`
}

// ResetPasswordRequest is the final password reset step
type ResetPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

// ListRequest is a paged list request. Filter is passed through unchanged.
type ListRequest struct {
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
	Filter json.RawMessage `json:"filter"`
}

// PollPage is one page of polls and the total across all pages
type PollPage struct {
	Polls []models.Poll `json:"data"`
	Total int           `json:"total"`
}

// VoteResult is the backend's acknowledgement of a cast vote
type VoteResult struct {
	Message string
}

// APIError is a failure reported by the backend
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorKind classifies the failure for the errors package.
func (e *APIError) ErrorKind() errors.Kind {
	switch {
	case e.Status == http.StatusUnauthorized:
		return errors.ErrCredential
	case e.Status == http.StatusNotFound:
		return errors.ErrNotFound
	case e.Status >= 500:
		return errors.ErrTransport
	default:
		return errors.ErrRejected
	}
}

// TokenSource yields the current bearer token, or "" when signed out
type TokenSource interface {
	Token() string
}

// Client defines the interface for voting backend operations
type Client interface {
	// Login exchanges credentials for a bearer token
	Login(ctx context.Context, email, password string) (string, error)
	// Register creates an account after the email has been verified
	Register(ctx context.Context, req RegisterRequest) error
	// RequestRegistrationOTP sends a verification code to email
	RequestRegistrationOTP(ctx context.Context, email string) error
	// VerifyOTP checks a code for the given flow
	VerifyOTP(ctx context.Context, email, otp string, purpose OTPPurpose) error
	// RequestPasswordResetOTP sends a reset code to email
	RequestPasswordResetOTP(ctx context.Context, email string) error
	// ResetPassword sets a new password using a verified code
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	// ListPolls retrieves one page of polls
	ListPolls(ctx context.Context, req ListRequest) (PollPage, error)
	// GetPoll retrieves a single poll
	GetPoll(ctx context.Context, id string) (models.Poll, error)
	// ListCandidatesWithVotes retrieves a poll's candidates and their counts
	ListCandidatesWithVotes(ctx context.Context, pollID string) ([]models.Candidate, error)
	// CastVote records a vote for candidateID in pollID
	CastVote(ctx context.Context, pollID, candidateID string) (VoteResult, error)
	// BaseURL returns the configured backend base URL
	BaseURL() string
}

// HTTPClient is a real HTTP client for the voting backend
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
	tokens     TokenSource
}

// NewHTTPClient creates a new backend client
func NewHTTPClient(baseURL string, timeout time.Duration, log logger.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewHTTPClientWithHTTPClient(baseURL, &http.Client{Timeout: timeout}, log)
}

// NewHTTPClientWithHTTPClient creates a new backend client with a custom http.Client
func NewHTTPClientWithHTTPClient(baseURL string, httpClient *http.Client, log logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// SetTokenSource sets where the bearer token comes from
func (c *HTTPClient) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the configured backend base URL
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// envelope is the common response wrapper
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) failureMessage() string {
	if e.Message != "" {
		return e.Message
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &detail) == nil && detail.Detail != "" {
		return detail.Detail
	}
	return e.Error
}

// doRequest sends body as JSON to path and decodes the envelope's data into out.
// Non-2xx statuses and success:false become *APIError; anything that prevents
// reading a reply is a transport error.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, out any) (envelope, error) {
	var env envelope
	apiURL := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return env, errors.Internal(fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return env, errors.Internal(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	requestID := newRequestID()
	req.Header.Set("X-Request-ID", requestID)

	c.log.Debug("Voting API request", "method", method, "url", apiURL, "request_id", requestID)
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return env, errors.Transport(fmt.Errorf("failed to connect to voting backend: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, errors.Transport(fmt.Errorf("failed to read response: %w", err))
	}

	c.log.Debug("Voting API response", "status", resp.StatusCode, "request_id", requestID,
		"bytes", len(raw), "duration", time.Since(started))

	parseErr := json.Unmarshal(raw, &env)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if !ok {
		msg := ""
		if parseErr == nil {
			msg = env.failureMessage()
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return env, &APIError{Status: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if parseErr != nil {
		return env, errors.Transport(fmt.Errorf("failed to parse response: %w", parseErr))
	}
	if env.Success != nil && !*env.Success {
		msg := env.failureMessage()
		if msg == "" {
			msg = "Request failed"
		}
		return env, &APIError{Status: resp.StatusCode, Code: env.Code, Message: msg}
	}

	if out != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return env, errors.Transport(fmt.Errorf("response has no data"))
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, errors.Transport(fmt.Errorf("failed to parse response data: %w", err))
		}
	}
	return env, nil
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Login authenticates and returns the issued bearer token
func (c *HTTPClient) Login(ctx context.Context, email, password string) (string, error) {
	var data struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if _, err := c.doRequest(ctx, http.MethodPost, "/auth/login", body, &data); err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", errors.Transport(fmt.Errorf("login response has no token"))
	}
	c.log.Info("Voting backend login successful", "email", email)
	return data.Token, nil
}

// Register creates an account
func (c *HTTPClient) Register(ctx context.Context, r RegisterRequest) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/users/register", r, nil)
	return err
}

// RequestRegistrationOTP sends a registration code
func (c *HTTPClient) RequestRegistrationOTP(ctx context.Context, email string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/auth/registration/otp", map[string]string{"email": email}, nil)
	return err
}

// VerifyOTP verifies a code for purpose
func (c *HTTPClient) VerifyOTP(ctx context.Context, email, otp string, purpose OTPPurpose) error {
	body := map[string]string{"email": email, "otp": otp, "purpose": string(purpose)}
	_, err := c.doRequest(ctx, http.MethodPost, "/auth/otp/verify", body, nil)
	return err
}

// RequestPasswordResetOTP sends a reset code
func (c *HTTPClient) RequestPasswordResetOTP(ctx context.Context, email string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/auth/password/reset/otp", map[string]string{"email": email}, nil)
	return err
}

// ResetPassword sets a new password
func (c *HTTPClient) ResetPassword(ctx context.Context, r ResetPasswordRequest) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/auth/reset/password", r, nil)
	return err
}

// ListPolls retrieves one page of polls
func (c *HTTPClient) ListPolls(ctx context.Context, r ListRequest) (PollPage, error) {
	if len(r.Filter) == 0 {
		r.Filter = json.RawMessage(`{}`)
	}
	var page PollPage
	if _, err := c.doRequest(ctx, http.MethodPost, "/polls/list", r, &page); err != nil {
		return PollPage{}, err
	}
	if page.Polls == nil {
		page.Polls = []models.Poll{}
	}
	page.Total = max(page.Total, 0)
	return page, nil
}

// GetPoll retrieves a single poll
func (c *HTTPClient) GetPoll(ctx context.Context, id string) (models.Poll, error) {
	var poll models.Poll
	if _, err := c.doRequest(ctx, http.MethodGet, "/polls/"+url.PathEscape(id), nil, &poll); err != nil {
		return models.Poll{}, err
	}
	return poll, nil
}

// ListCandidatesWithVotes retrieves a poll's candidates with their vote counts.
// The backend groups results per poll; only the first group is relevant when
// filtering by a single poll id.
func (c *HTTPClient) ListCandidatesWithVotes(ctx context.Context, pollID string) ([]models.Candidate, error) {
	body := map[string]any{"filter": map[string]string{"pollId": pollID}}

	var data struct {
		Data []struct {
			Candidates []models.Candidate `json:"candidates"`
		} `json:"data"`
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/analytics/list-candidate-per-polls-with-votes", body, &data); err != nil {
		return nil, err
	}
	if len(data.Data) == 0 || data.Data[0].Candidates == nil {
		return []models.Candidate{}, nil
	}
	return data.Data[0].Candidates, nil
}

// CastVote records a vote
func (c *HTTPClient) CastVote(ctx context.Context, pollID, candidateID string) (VoteResult, error) {
	body := map[string]string{"candidateId": candidateID, "pollId": pollID}
	env, err := c.doRequest(ctx, http.MethodPost, "/votes/cast", body, nil)
	if err != nil {
		return VoteResult{}, err
	}
	return VoteResult{Message: env.Message}, nil
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
