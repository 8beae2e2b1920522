package errors

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Error kinds of the booking-to-invoice pipeline. Concrete errors are marked with
// one of these through the builder so callers can classify them with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrUpstreamAuth    = errors.New("upstream auth error")
	ErrUpstreamData    = errors.New("upstream data error")
	ErrDataIntegrity   = errors.New("data integrity error")
	ErrLineComputation = errors.New("line computation warning")
	ErrPersistence     = errors.New("persistence error")
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("not found")

	statusCodeMap = map[error]int{
		ErrBadRequest:      http.StatusBadRequest,
		ErrNotFound:        http.StatusBadRequest,
		ErrConfiguration:   http.StatusInternalServerError,
		ErrUpstreamAuth:    http.StatusInternalServerError,
		ErrUpstreamData:    http.StatusInternalServerError,
		ErrDataIntegrity:   http.StatusInternalServerError,
		ErrPersistence:     http.StatusInternalServerError,
		ErrLineComputation: http.StatusInternalServerError,
	}
)

// IsConfiguration reports whether err is a missing or invalid setting.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsUpstreamAuth reports whether err came from the token exchange.
func IsUpstreamAuth(err error) bool {
	return errors.Is(err, ErrUpstreamAuth)
}

// IsUpstreamData reports whether err came from a detail or client lookup.
func IsUpstreamData(err error) bool {
	return errors.Is(err, ErrUpstreamData)
}

func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Is and As re-export the cockroachdb matchers so callers only import this package.
func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Hint returns the first user-facing hint attached to err, or fallback.
func Hint(err error, fallback string) string {
	hints := errors.GetAllHints(err)
	if len(hints) == 0 {
		return fallback
	}
	return hints[0]
}

// HTTPStatusFromErr maps an error kind to the status code surfaced to callers.
func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
