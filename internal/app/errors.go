/**
 * @description
 * This file defines the error taxonomy the linking service exposes to its
 * callers. Every repository-layer failure is wrapped into one of these kinds
 * before crossing into the API layer, so handlers never inspect raw storage
 * errors.
 */
package app

import (
	"errors"
	"fmt"
)

var (
	// ErrLimitExceeded means the customer already owns the maximum permitted
	// number of accounts and the request is not a reactivation.
	ErrLimitExceeded = errors.New("account limit reached for customer")

	// ErrDuplicateAccount means the identity pair belongs to a different
	// customer. Permanent, not retryable.
	ErrDuplicateAccount = errors.New("account is already registered to another customer")

	// ErrImmutableIdentity means an Amend tried to change the account number
	// or ifsc code of the active account.
	ErrImmutableIdentity = errors.New("account number and ifsc code cannot be changed")

	// ErrLocked means the target account has been approved by the verifier
	// and is frozen.
	ErrLocked = errors.New("account is verified and can no longer be modified")

	// ErrNoActiveAccount means the customer has no active account to amend
	// or retrieve.
	ErrNoActiveAccount = errors.New("customer has no active bank account")

	// ErrInvalidInput covers request-level validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransientStorage means the underlying persistence operation failed
	// in a retryable way. The enclosing transaction has been rolled back.
	ErrTransientStorage = errors.New("transient storage failure")
)

// invalidInput builds an ErrInvalidInput with a field-level detail message.
func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// transient wraps an unexpected storage error into the retryable kind while
// keeping the underlying cause in the message for the logs.
func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransientStorage, op, err)
}
