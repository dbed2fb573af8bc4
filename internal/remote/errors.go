package remote

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Failure classes for calls to the store of record. Callers discriminate
// with errors.Is; the ledger's rollback protocol treats all of them the
// same way (roll back, surface), but the API surface maps them to
// different status codes.
var (
	// ErrUnauthenticated: the store rejected our credentials. Never
	// retried here; credential refresh belongs to the session collaborator.
	ErrUnauthenticated = errors.New("remote store rejected credentials")

	// ErrNotFound: the entity does not exist on the store of record.
	ErrNotFound = errors.New("entity not found on remote store")

	// ErrConflict: the store rejected the mutation as stale, e.g. the
	// entity was deleted concurrently. No automatic merge is attempted.
	ErrConflict = errors.New("remote store reported a conflict")

	// ErrUnavailable: connectivity, timeout or server-side failure.
	// The caller may retry by reissuing the mutation.
	ErrUnavailable = errors.New("remote store unavailable")

	// ErrRejected: the store refused the payload outright (4xx not
	// covered above). Indicates a bug on our side; not retryable.
	ErrRejected = errors.New("remote store rejected request")
)

// statusError maps a non-success HTTP response to the error taxonomy.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := string(body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w (status %d)", ErrNotFound, resp.StatusCode)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%w (status %d): %s", ErrConflict, resp.StatusCode, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w (status %d)", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w (status %d): %s", ErrRejected, resp.StatusCode, msg)
	}
}

// transportError classifies errors that occur before a response arrives.
// Context cancellation counts as transient too: the mutation protocol still
// resolves with a rollback rather than leaving a pending record.
func transportError(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
