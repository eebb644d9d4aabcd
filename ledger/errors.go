package ledger

import (
	"errors"
	"fmt"
)

type upstreamUnavailableError struct {
	message string
}

// NewUpstreamUnavailableError marks transport-level provider failures.
// Callers retry these with backoff; they never terminate a payment.
func NewUpstreamUnavailableError(message string) error {
	return &upstreamUnavailableError{message: message}
}

func (err *upstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream ledger unavailable: %s", err.message)
}

func IsUpstreamUnavailableError(err error) bool {
	var target *upstreamUnavailableError
	return errors.As(err, &target)
}

type transferRejectedError struct {
	message string
}

// NewTransferRejectedError marks transfers the provider refused outright
// (bad destination, insufficient funnel balance). Retrying cannot help.
func NewTransferRejectedError(message string) error {
	return &transferRejectedError{message: message}
}

func (err *transferRejectedError) Error() string {
	return fmt.Sprintf("transfer rejected by ledger: %s", err.message)
}

func IsTransferRejectedError(err error) bool {
	var target *transferRejectedError
	return errors.As(err, &target)
}
