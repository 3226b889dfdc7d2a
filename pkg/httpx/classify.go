// Package httpx classifies outbound HTTP failures into the transient/permanent taxonomy.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/acme/lead-engagement/pkg/errors"
)

// maxErrorBody caps how much of a failed response is quoted in errors.
const maxErrorBody = 512

// TransportError wraps a failed round trip. Timeouts and network errors are transient.
func TransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrTransient, op, err)
}

// StatusError classifies a non-2xx response: 429 and 5xx are transient, other 4xx permanent.
// It returns nil for 2xx.
func StatusError(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: %s: status %d: %s", apperrors.ErrTransient, op, status, msg)
	}
	return fmt.Errorf("%w: %s: status %d: %s", apperrors.ErrPermanent, op, status, msg)
}
