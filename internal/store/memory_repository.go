/**
 * @description
 * This file provides in-memory implementations of the repository interfaces.
 * They back the unit tests for the linking state machine and the API layer,
 * and honor the same contract as the PostgreSQL implementations: sentinel
 * errors, idempotent activate/deactivate, and transactional rollback.
 *
 * @notes
 * - InTransaction snapshots the whole account map and restores it when fn
 *   fails, so a failed operation never leaves partial state behind. A single
 *   mutex stands in for the per-customer advisory lock.
 */
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arthapay/bank-linking-service/internal/domain"
)

// MemoryAccountRepository is an in-memory AccountRepository.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.BankAccount
	inTx     bool
}

// NewMemoryAccountRepository creates an empty in-memory repository.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[uuid.UUID]*domain.BankAccount)}
}

func copyAccount(a *domain.BankAccount) *domain.BankAccount {
	c := *a
	if a.ChequeImage != nil {
		img := *a.ChequeImage
		c.ChequeImage = &img
	}
	return &c
}

func (r *MemoryAccountRepository) lock() func() {
	if r.inTx {
		// Already serialized by the enclosing InTransaction call.
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// FindActiveAccount returns the customer's active account.
func (r *MemoryAccountRepository) FindActiveAccount(ctx context.Context, customerID uuid.UUID) (*domain.BankAccount, error) {
	defer r.lock()()
	for _, a := range r.accounts {
		if a.CustomerID == customerID && a.IsActive {
			return copyAccount(a), nil
		}
	}
	return nil, ErrAccountNotFound
}

// FindDormantMatch returns the customer's inactive account with the pair.
func (r *MemoryAccountRepository) FindDormantMatch(ctx context.Context, customerID uuid.UUID, ifscCode, accountNumber string) (*domain.BankAccount, error) {
	defer r.lock()()
	for _, a := range r.accounts {
		if a.CustomerID == customerID && !a.IsActive && a.SamePair(ifscCode, accountNumber) {
			return copyAccount(a), nil
		}
	}
	return nil, ErrAccountNotFound
}

// ExistsGlobally reports whether any customer registered the pair.
func (r *MemoryAccountRepository) ExistsGlobally(ctx context.Context, ifscCode, accountNumber string) (bool, error) {
	defer r.lock()()
	for _, a := range r.accounts {
		if a.SamePair(ifscCode, accountNumber) {
			return true, nil
		}
	}
	return false, nil
}

// CountForCustomer counts all rows the customer owns.
func (r *MemoryAccountRepository) CountForCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	defer r.lock()()
	count := 0
	for _, a := range r.accounts {
		if a.CustomerID == customerID {
			count++
		}
	}
	return count, nil
}

// DeactivateAllForCustomer clears the active flag on the customer's rows.
func (r *MemoryAccountRepository) DeactivateAllForCustomer(ctx context.Context, customerID uuid.UUID) error {
	defer r.lock()()
	for _, a := range r.accounts {
		if a.CustomerID == customerID && a.IsActive {
			a.IsActive = false
			a.UpdatedAt = time.Now()
		}
	}
	return nil
}

// Activate flags one row active.
func (r *MemoryAccountRepository) Activate(ctx context.Context, accountID uuid.UUID) error {
	defer r.lock()()
	a, ok := r.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.IsActive = true
	a.UpdatedAt = time.Now()
	return nil
}

// CreateAccount stores a new row, enforcing pair uniqueness like the unique
// index would.
func (r *MemoryAccountRepository) CreateAccount(ctx context.Context, account *domain.BankAccount) (*domain.BankAccount, error) {
	defer r.lock()()
	for _, a := range r.accounts {
		if a.SamePair(account.IFSCCode, account.AccountNumber) {
			return nil, ErrDuplicatePair
		}
	}
	stored := copyAccount(account)
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.accounts[stored.ID] = stored
	return copyAccount(stored), nil
}

// UpdateAccount applies non-identity field changes.
func (r *MemoryAccountRepository) UpdateAccount(ctx context.Context, accountID uuid.UUID, params UpdateAccountParams) (*domain.BankAccount, error) {
	defer r.lock()()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if a.IsLocked() {
		return nil, ErrAccountLocked
	}
	if params.BankID != nil {
		a.BankID = *params.BankID
	}
	if params.BranchName != nil {
		a.BranchName = *params.BranchName
	}
	if params.NameAsPerBankRecord != nil {
		a.NameAsPerBankRecord = *params.NameAsPerBankRecord
	}
	if params.ChequeImage != nil {
		img := *params.ChequeImage
		a.ChequeImage = &img
	}
	if params.VerificationMode != nil {
		a.VerificationMode = *params.VerificationMode
	}
	if params.AccountType != nil {
		a.AccountType = *params.AccountType
	}
	if params.IsChequeVerified != nil {
		a.IsChequeVerified = *params.IsChequeVerified
	}
	a.UpdatedAt = time.Now()
	return copyAccount(a), nil
}

// FindAccountByID returns one row by id.
func (r *MemoryAccountRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.BankAccount, error) {
	defer r.lock()()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(a), nil
}

// UpdateVerificationStatus flips the verification status on one row.
// Approved rows are terminal and refuse further changes.
func (r *MemoryAccountRepository) UpdateVerificationStatus(ctx context.Context, accountID uuid.UUID, status domain.VerificationStatus) error {
	defer r.lock()()
	a, ok := r.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if a.IsLocked() {
		return ErrAccountLocked
	}
	a.VerificationStatus = status
	a.UpdatedAt = time.Now()
	return nil
}

// InTransaction serializes fn behind the repository mutex and rolls the whole
// state back when fn fails.
func (r *MemoryAccountRepository) InTransaction(ctx context.Context, customerID uuid.UUID, fn func(AccountRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[uuid.UUID]*domain.BankAccount, len(r.accounts))
	for id, a := range r.accounts {
		snapshot[id] = copyAccount(a)
	}

	txRepo := &MemoryAccountRepository{accounts: r.accounts, inTx: true}
	if err := fn(txRepo); err != nil {
		r.accounts = snapshot
		return err
	}
	return nil
}

// ActiveCountForCustomer reports how many rows are flagged active for the
// customer. Test hook for the single-active invariant.
func (r *MemoryAccountRepository) ActiveCountForCustomer(customerID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.accounts {
		if a.CustomerID == customerID && a.IsActive {
			count++
		}
	}
	return count
}

// TotalCount reports the number of stored rows. Test hook.
func (r *MemoryAccountRepository) TotalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// Seed inserts a fully-formed row without contract checks. Test hook.
func (r *MemoryAccountRepository) Seed(account *domain.BankAccount) *domain.BankAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := copyAccount(account)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	r.accounts[stored.ID] = stored
	return copyAccount(stored)
}

// MemoryBankRepository is an in-memory BankRepository.
type MemoryBankRepository struct {
	mu    sync.Mutex
	banks map[uuid.UUID]domain.Bank
}

// NewMemoryBankRepository creates a bank repository seeded with the given
// banks.
func NewMemoryBankRepository(banks ...domain.Bank) *MemoryBankRepository {
	r := &MemoryBankRepository{banks: make(map[uuid.UUID]domain.Bank)}
	for _, b := range banks {
		r.banks[b.ID] = b
	}
	return r
}

// FindBankByID returns one bank by id.
func (r *MemoryBankRepository) FindBankByID(ctx context.Context, bankID uuid.UUID) (*domain.Bank, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.banks[bankID]
	if !ok {
		return nil, ErrBankNotFound
	}
	return &b, nil
}

// ListBanks returns all seeded banks.
func (r *MemoryBankRepository) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	banks := make([]domain.Bank, 0, len(r.banks))
	for _, b := range r.banks {
		banks = append(banks, b)
	}
	return banks, nil
}
