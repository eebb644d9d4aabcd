package store

import (
	"errors"
	"fmt"
)

type notFoundError struct {
}

func NewNotFoundError() error {
	return &notFoundError{}
}

func (err *notFoundError) Error() string {
	return "The payment requested was not found"
}

func IsNotFoundError(err error) bool {
	var target *notFoundError
	return errors.As(err, &target)
}

type validationError struct {
	message string
}

// NewValidationError rejects malformed creation input synchronously; no
// record is persisted when one is returned.
func NewValidationError(message string) error {
	return &validationError{message: message}
}

func (err *validationError) Error() string {
	return err.message
}

func IsValidationError(err error) bool {
	var target *validationError
	return errors.As(err, &target)
}

type invalidTransitionError struct {
	paymentHash string
	from        string
	to          string
}

func NewInvalidTransitionError(paymentHash string, from string, to string) error {
	return &invalidTransitionError{paymentHash: paymentHash, from: from, to: to}
}

func (err *invalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payment state transition %s -> %s for %s", err.from, err.to, err.paymentHash)
}

func IsInvalidTransitionError(err error) bool {
	var target *invalidTransitionError
	return errors.As(err, &target)
}
