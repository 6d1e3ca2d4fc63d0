package crm

import (
	"errors"
	"fmt"
)

// Sentinel errors for request outcomes. The classification layer treats most
// of these as "no evidence found"; the two auth failures abort an entire
// classification, since without a working token no lookup path can succeed.
var (
	ErrUnauthenticated = errors.New("no api token configured")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrTimeout         = errors.New("request timed out")
	ErrNetwork         = errors.New("network failure")
	ErrDecode          = errors.New("malformed response body")
)

// StatusError reports a non-2xx response outside the statuses with dedicated
// retry semantics. It is never retried.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d", e.Status)
}
