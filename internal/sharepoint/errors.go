package sharepoint

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means no access token could be obtained. It aborts the
	// calling operation and is never retried here.
	ErrAuth = errors.New("sharepoint: cannot obtain access token")

	ErrNotFound = errors.New("sharepoint: item not found")

	// ErrTransient covers timeouts, throttling and 5xx responses.
	ErrTransient = errors.New("sharepoint: transient request failure")
)

func IsAuth(err error) bool      { return errors.Is(err, ErrAuth) }
func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

func statusError(endpoint string, code int, body string) error {
	switch {
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s returned %d: %s", ErrAuth, endpoint, code, body)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: %s returned %d", ErrTransient, endpoint, code)
	default:
		return fmt.Errorf("sharepoint: %s returned %d: %s", endpoint, code, body)
	}
}
