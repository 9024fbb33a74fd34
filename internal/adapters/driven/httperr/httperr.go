// Package httperr translates HTTP provider failures into domain errors.
//
// Every HTTP adapter maps responses the same way:
//   - 429 becomes domain.ErrRateLimited
//   - 5xx becomes the adapter's "unavailable" sentinel
//   - any other 4xx becomes domain.ErrInvalidInput
//   - a transport failure becomes the "unavailable" sentinel, unless the
//     caller's context ended, in which case the context error is returned
package httperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// maxBodyInError bounds how much of a response body is quoted in errors.
const maxBodyInError = 512

// FromStatus classifies a non-2xx response. It returns nil for 2xx.
func FromStatus(service string, status int, body []byte, unavailable error) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := Snippet(body)
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w (status %d): %s", service, domain.ErrRateLimited, status, msg)
	case status >= 500:
		return fmt.Errorf("%s: %w (status %d): %s", service, unavailable, status, msg)
	default:
		return fmt.Errorf("%s: %w (status %d): %s", service, domain.ErrInvalidInput, status, msg)
	}
}

// FromTransport classifies an error returned by http.Client.Do.
func FromTransport(ctx context.Context, service string, err error, unavailable error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", service, ctxErr)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", service, err)
	}
	return fmt.Errorf("%s: %w: %v", service, unavailable, err)
}

// Snippet returns a trimmed, bounded copy of a response body.
func Snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyInError {
		s = s[:maxBodyInError] + "..."
	}
	return s
}
