package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/validate"
	"github.com/abrezinsky/votedesk/internal/voteflow"
)

// Error codes for standardized API error responses
const (
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodePollEnded           = "POLL_ENDED"
	ErrCodeVoteRejected        = "VOTE_REJECTED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeSessionLoading      = "SESSION_LOADING"
	ErrCodeInternalServer      = "INTERNAL_SERVER_ERROR"
)

// APIError represents an error with an HTTP status code and error code
type APIError struct {
	Status  int                 `json:"-"`
	Code    string              `json:"code"`
	Message string              `json:"error"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Common errors
var (
	ErrBadRequest     = &APIError{Status: http.StatusBadRequest, Code: ErrCodeBadRequest, Message: "Bad request"}
	ErrUnauthorized   = &APIError{Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: "Please sign in to continue"}
	ErrForbidden      = &APIError{Status: http.StatusForbidden, Code: ErrCodeForbidden, Message: "You do not have access to this resource"}
	ErrNotFound       = &APIError{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: "Not found"}
	ErrLoading        = &APIError{Status: http.StatusServiceUnavailable, Code: ErrCodeSessionLoading, Message: "Session is still loading"}
	ErrInternalServer = &APIError{Status: http.StatusInternalServerError, Code: ErrCodeInternalServer, Message: "Internal server error"}
)

// NewAPIError creates a new API error with custom message and code
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// BadRequest creates a 400 error with custom message
func BadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: ErrCodeBadRequest, Message: message}
}

// NotFound creates a 404 error with custom message
func NotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: message}
}

// InternalError creates a 500 error, logs the original error
func InternalError(err error) *APIError {
	log.Printf("Internal error: %v", err)
	return &APIError{Status: http.StatusInternalServerError, Code: ErrCodeInternalServer, Message: "Internal server error"}
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondOK writes a 200 OK JSON response
func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, data)
}

// respondSuccess writes a 200 OK with a message
func respondSuccess(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, map[string]string{"message": message})
}

// respondError writes an error response
func respondError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*APIError); ok {
		respondJSON(w, apiErr.Status, apiErr)
		return
	}
	apiErr := ToAPIError(err)
	respondJSON(w, apiErr.Status, apiErr)
}

// decodeJSON decodes JSON from request body into the target
func decodeJSON(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if err == io.EOF {
			return BadRequest("Request body is empty")
		}
		return BadRequest("Invalid JSON: " + err.Error())
	}
	return nil
}

// parseIntQuery reads an optional positive integer query parameter
func parseIntQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, BadRequest("Invalid " + name + " parameter")
	}
	return n, nil
}

// pollIDParam extracts the poll id URL parameter
func pollIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return "", BadRequest("Missing poll id")
	}
	return id, nil
}

// userMessage returns the text of err that is safe to show
func userMessage(err error) string {
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// ToAPIError converts service errors to appropriate API errors
func ToAPIError(err error) *APIError {
	var rejection *voteflow.Rejection
	if errors.As(err, &rejection) {
		if rejection.Ended {
			return &APIError{Status: http.StatusConflict, Code: ErrCodePollEnded, Message: rejection.Message}
		}
		if rejection.Kind == errors.ErrCredential {
			return &APIError{Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: rejection.Message}
		}
		return &APIError{Status: http.StatusBadRequest, Code: ErrCodeVoteRejected, Message: rejection.Message}
	}

	msg := userMessage(err)
	switch errors.KindOf(err) {
	case errors.ErrNotFound:
		return NotFound(msg)
	case errors.ErrValidation, errors.ErrInvalidInput:
		return &APIError{Status: http.StatusBadRequest, Code: ErrCodeValidation, Message: msg, Fields: validate.ProblemsOf(err)}
	case errors.ErrConflict:
		return &APIError{Status: http.StatusConflict, Code: ErrCodeConflict, Message: msg}
	case errors.ErrCredential, errors.ErrDecode:
		return &APIError{Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: msg}
	case errors.ErrRejected:
		return &APIError{Status: http.StatusBadRequest, Code: ErrCodeVoteRejected, Message: msg}
	case errors.ErrTransport:
		return &APIError{Status: http.StatusBadGateway, Code: ErrCodeUpstreamUnavailable, Message: msg}
	default:
		return InternalError(err)
	}
}
