/**
 * @description
 * This file defines the interfaces for the data access layer (repositories).
 * Defining interfaces allows for dependency injection and easy mocking in
 * tests, and keeps the linking state machine storage-agnostic.
 *
 * @notes
 * - Any component that needs to interact with the database should depend on
 *   these interfaces, not on the concrete PostgreSQL implementation.
 * - All mutating operations are expected to run inside InTransaction so the
 *   single-active-account invariant is never observable half-done.
 */
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/arthapay/bank-linking-service/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("bank account not found")
	ErrBankNotFound    = errors.New("bank not found")
	ErrAccountLocked   = errors.New("bank account is approved and locked")
	ErrDuplicatePair   = errors.New("account number and ifsc code already registered")
)

// UpdateAccountParams carries the amendable, non-identity fields of a bank
// account. Nil pointers leave the stored value untouched. The identity pair
// (account number, ifsc code) is deliberately not representable here.
type UpdateAccountParams struct {
	BankID              *uuid.UUID
	BranchName          *string
	NameAsPerBankRecord *string
	ChequeImage         *string
	VerificationMode    *domain.VerificationMode
	AccountType         *domain.BankAccountType
	IsChequeVerified    *bool
}

// AccountRepository defines the contract for bank account persistence.
type AccountRepository interface {
	// FindActiveAccount returns the customer's single active account, or
	// ErrAccountNotFound when the customer has none.
	FindActiveAccount(ctx context.Context, customerID uuid.UUID) (*domain.BankAccount, error)

	// FindDormantMatch returns a customer-owned, currently-inactive account
	// matching the identity pair, or ErrAccountNotFound.
	FindDormantMatch(ctx context.Context, customerID uuid.UUID, ifscCode, accountNumber string) (*domain.BankAccount, error)

	// ExistsGlobally reports whether any customer has registered the pair.
	ExistsGlobally(ctx context.Context, ifscCode, accountNumber string) (bool, error)

	// CountForCustomer counts all rows owned by the customer, active or not.
	CountForCustomer(ctx context.Context, customerID uuid.UUID) (int, error)

	// DeactivateAllForCustomer clears the active flag on every row owned by
	// the customer. Idempotent.
	DeactivateAllForCustomer(ctx context.Context, customerID uuid.UUID) error

	// Activate sets the active flag on exactly one row. Idempotent.
	Activate(ctx context.Context, accountID uuid.UUID) error

	CreateAccount(ctx context.Context, account *domain.BankAccount) (*domain.BankAccount, error)

	// UpdateAccount applies non-identity field changes. Returns
	// ErrAccountLocked when the target row has been approved.
	UpdateAccount(ctx context.Context, accountID uuid.UUID, params UpdateAccountParams) (*domain.BankAccount, error)

	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.BankAccount, error)

	// UpdateVerificationStatus flips the verification status. Used by the
	// verification result consumer only.
	UpdateVerificationStatus(ctx context.Context, accountID uuid.UUID, status domain.VerificationStatus) error

	// InTransaction runs fn against a transaction-scoped repository. Calls
	// for the same customer serialize; calls for different customers never
	// contend. Any error from fn rolls the whole transaction back.
	InTransaction(ctx context.Context, customerID uuid.UUID, fn func(AccountRepository) error) error
}

// BankRepository defines the contract for the read-only bank reference data.
type BankRepository interface {
	FindBankByID(ctx context.Context, bankID uuid.UUID) (*domain.Bank, error)
	ListBanks(ctx context.Context) ([]domain.Bank, error)
}
