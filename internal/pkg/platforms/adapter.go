package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

// PostContent is the platform-specific payload of one schedule record. Body is
// used by the text based platforms; Title/Description/AssetURL by the video
// draft variant.
type PostContent struct {
	Body        string
	Title       string
	Description string
	AssetURL    string
}

// Credentials carries a decrypted access token plus the external account the
// post is published under. Never log either field.
type Credentials struct {
	AccessToken       string
	ExternalAccountID string
}

// Adapter is the capability set every publish target implements. Validate must
// be side-effect free and never touch the network; Publish returns the
// external post id on success.
type Adapter interface {
	Platform() models.Platform
	Validate(post PostContent) error
	Publish(ctx context.Context, post PostContent, creds Credentials) (string, error)
}

// ValidationError rejects content before any network call. It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a content validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PublishError is a failed publish attempt, classified as transient (retry
// with backoff) or permanent (fail the record immediately).
type PublishError struct {
	Platform  models.Platform
	Code      int
	Message   string
	Transient bool
}

func (e *PublishError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s publish failed (%s, code %d): %s", e.Platform, kind, e.Code, e.Message)
}

// IsTransient reports whether err should be retried. Timeouts and context
// cancellation during a dispatched call count as transient.
func IsTransient(err error) bool {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// transientHTTPStatus classifies an HTTP status with no better provider
// specific signal: rate limits and server errors are retryable.
func transientHTTPStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// requestTimeout bounds every external publish call.
const requestTimeout = 15 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}
