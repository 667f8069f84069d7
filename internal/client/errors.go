package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means no answer arrived in time. Nothing is known to have
	// changed on the server, so the request may be retried.
	ErrTimeout = errors.New("client: request timed out")
	// ErrOutcomeUnknown is returned when a transfer timed out: the server may
	// have applied it and only the answer was lost. Check the balance before
	// retrying.
	ErrOutcomeUnknown = fmt.Errorf("%w: transfer outcome unknown, check balance before retrying", ErrTimeout)

	ErrNotLoggedIn     = errors.New("client: not logged in")
	ErrAlreadyLoggedIn = errors.New("client: already logged in, log out first")
)

func outcomeUnknown(cause error) error {
	if errors.Is(cause, ErrTimeout) {
		return ErrOutcomeUnknown
	}
	return fmt.Errorf("%w: %w", ErrOutcomeUnknown, cause)
}
