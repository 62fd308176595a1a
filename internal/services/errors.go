package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
)

// Messages shown when the backend gives no usable reason
const (
	msgUnavailable  = "Unable to reach the voting service. Please try again."
	msgInvalidToken = "Invalid token structure"
)

// Service errors
var (
	ErrNotVerified     = errors.Validation("Please verify your email with the code we sent first")
	ErrInvalidPageSize = errors.InvalidInput("page size must be between 1 and 100")
)

// CooldownError is returned when an OTP is requested again too soon
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	secs := int(e.Remaining.Round(time.Second) / time.Second)
	return fmt.Sprintf("Please wait %ds before requesting another code", max(secs, 1))
}

// ErrorKind classifies the error for the errors package.
func (e *CooldownError) ErrorKind() errors.Kind {
	return errors.ErrConflict
}

// remoteFailure turns a backend error into one whose message can be shown
// as is. Refusals keep the backend's wording under kind; anything else
// becomes the generic unavailable message.
func remoteFailure(err error, kind errors.Kind) error {
	var apiErr *votingapi.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorKind() == errors.ErrTransport || strings.TrimSpace(apiErr.Message) == "" {
			return errors.Wrap(err, errors.ErrTransport, msgUnavailable)
		}
		return &errors.Error{Kind: kind, Message: apiErr.Message}
	}

	var appErr *errors.Error
	if errors.As(err, &appErr) && appErr.Kind != errors.ErrTransport && appErr.Kind != errors.ErrInternal {
		return appErr
	}
	return errors.Wrap(err, errors.ErrTransport, msgUnavailable)
}
