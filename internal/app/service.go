/**
 * @description
 * This file contains the core business logic for the bank-linking-service:
 * the active-account reconciliation engine. Given a registration or amendment
 * request it decides whether to reuse a dormant account, create a new one, or
 * reject the operation, while preserving the single-active-account invariant.
 *
 * @notes
 * - All mutation runs inside one repository transaction, so no window exists
 *   where a customer has zero or two active accounts, even under concurrent
 *   registrations for the same customer.
 * - The service layer keeps the API handlers thin and focused on HTTP
 *   concerns, while the reconciliation rules remain independent and
 *   unit-testable against the in-memory repository.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arthapay/bank-linking-service/internal/domain"
	"github.com/arthapay/bank-linking-service/internal/store"
)

const defaultMaxAccountsPerCustomer = 4

// EventPublisher publishes domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// LinkingService owns the Register, Amend and GetActive operations.
type LinkingService struct {
	accounts    store.AccountRepository
	banks       store.BankRepository
	events      EventPublisher
	maxAccounts int
}

// NewLinkingService creates a new LinkingService. events may be nil, in which
// case no activation events are published. maxAccounts falls back to the
// default of 4 when non-positive.
func NewLinkingService(accounts store.AccountRepository, banks store.BankRepository, events EventPublisher, maxAccounts int) *LinkingService {
	if maxAccounts <= 0 {
		maxAccounts = defaultMaxAccountsPerCustomer
	}
	return &LinkingService{
		accounts:    accounts,
		banks:       banks,
		events:      events,
		maxAccounts: maxAccounts,
	}
}

// RegisterInput is the request to register (or reactivate) a bank account.
type RegisterInput struct {
	CustomerID          uuid.UUID
	BankID              uuid.UUID
	AccountNumber       string
	IFSCCode            string
	BranchName          string
	NameAsPerBankRecord string
	ChequeImage         *string
	VerificationMode    string
	AccountType         string
}

// AmendInput carries a partial update for the active account. Nil fields are
// left untouched. AccountNumber and IFSCCode are accepted only so an attempt
// to change them can be rejected explicitly.
type AmendInput struct {
	BankID              *uuid.UUID
	AccountNumber       *string
	IFSCCode            *string
	BranchName          *string
	NameAsPerBankRecord *string
	ChequeImage         *string
	VerificationMode    *string
	AccountType         *string
	IsChequeVerified    *bool
}

// Register makes the requested account the customer's active one. A dormant
// account matching the identity pair is reactivated in place of creating a
// duplicate row; otherwise a fresh row is created after limit and global
// uniqueness checks. Registering the pair that is already active is a no-op
// that returns the same row.
func (s *LinkingService) Register(ctx context.Context, input RegisterInput) (*domain.BankAccount, error) {
	if input.CustomerID == uuid.Nil {
		return nil, invalidInput("customer_id is required")
	}
	if input.BankID == uuid.Nil {
		return nil, invalidInput("bank_id is required")
	}
	ifsc, err := normalizeAndValidateIFSC(input.IFSCCode)
	if err != nil {
		return nil, err
	}
	number, err := normalizeAndValidateAccountNumber(input.AccountNumber)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.NameAsPerBankRecord) == "" {
		return nil, invalidInput("name_as_per_bank_record is required")
	}
	mode := input.VerificationMode
	if mode == "" {
		mode = string(domain.VerificationModeManual)
	}
	if !validVerificationMode(mode) {
		return nil, invalidInput("verification_mode must be 'manual' or 'e_verification'")
	}
	accountType := input.AccountType
	if accountType == "" {
		accountType = string(domain.AccountTypeSavings)
	}
	if !validAccountType(accountType) {
		return nil, invalidInput("account_type must be 'savings', 'current' or 'credit'")
	}

	if _, err := s.banks.FindBankByID(ctx, input.BankID); err != nil {
		if errors.Is(err, store.ErrBankNotFound) {
			return nil, invalidInput("unknown bank")
		}
		return nil, transient("look up bank", err)
	}

	var (
		result      *domain.BankAccount
		reactivated bool
		noop        bool
	)
	err = s.accounts.InTransaction(ctx, input.CustomerID, func(repo store.AccountRepository) error {
		active, err := repo.FindActiveAccount(ctx, input.CustomerID)
		if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
			return transient("find active account", err)
		}
		if active != nil && active.SamePair(ifsc, number) {
			// Re-registering the account that is already active. Nothing to
			// reconcile; echo the existing row.
			result = active
			noop = true
			return nil
		}

		dormant, err := repo.FindDormantMatch(ctx, input.CustomerID, ifsc, number)
		if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
			return transient("find dormant account", err)
		}

		if dormant == nil {
			// The limit exempts reactivations: recycling an existing row
			// never grows the customer's account count.
			count, err := repo.CountForCustomer(ctx, input.CustomerID)
			if err != nil {
				return transient("count accounts", err)
			}
			if count >= s.maxAccounts {
				return ErrLimitExceeded
			}
			exists, err := repo.ExistsGlobally(ctx, ifsc, number)
			if err != nil {
				return transient("check pair uniqueness", err)
			}
			if exists {
				return ErrDuplicateAccount
			}
		}

		if err := repo.DeactivateAllForCustomer(ctx, input.CustomerID); err != nil {
			return transient("deactivate accounts", err)
		}

		if dormant != nil {
			if err := repo.Activate(ctx, dormant.ID); err != nil {
				return transient("reactivate account", err)
			}
			refreshed, err := repo.FindAccountByID(ctx, dormant.ID)
			if err != nil {
				return transient("reload reactivated account", err)
			}
			result = refreshed
			reactivated = true
			return nil
		}

		created, err := repo.CreateAccount(ctx, &domain.BankAccount{
			CustomerID:          input.CustomerID,
			BankID:              input.BankID,
			AccountNumber:       number,
			IFSCCode:            ifsc,
			BranchName:          strings.TrimSpace(input.BranchName),
			NameAsPerBankRecord: strings.TrimSpace(input.NameAsPerBankRecord),
			ChequeImage:         input.ChequeImage,
			VerificationMode:    domain.VerificationMode(mode),
			VerificationStatus:  domain.VerificationStatusPending,
			AccountType:         domain.BankAccountType(accountType),
			IsActive:            true,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicatePair) {
				// Lost a race with another customer claiming the pair.
				return ErrDuplicateAccount
			}
			return transient("create account", err)
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, classify("register account", err)
	}

	if !noop {
		s.publishActivated(result, reactivated)
	}
	return result, nil
}

// Amend applies non-identity changes to the customer's active account.
func (s *LinkingService) Amend(ctx context.Context, customerID uuid.UUID, input AmendInput) (*domain.BankAccount, error) {
	if customerID == uuid.Nil {
		return nil, invalidInput("customer_id is required")
	}
	var requestedIFSC *string
	if input.IFSCCode != nil {
		normalized, err := normalizeAndValidateIFSC(*input.IFSCCode)
		if err != nil {
			return nil, err
		}
		requestedIFSC = &normalized
	}
	var requestedNumber *string
	if input.AccountNumber != nil {
		normalized, err := normalizeAndValidateAccountNumber(*input.AccountNumber)
		if err != nil {
			return nil, err
		}
		requestedNumber = &normalized
	}
	if input.VerificationMode != nil && !validVerificationMode(*input.VerificationMode) {
		return nil, invalidInput("verification_mode must be 'manual' or 'e_verification'")
	}
	if input.AccountType != nil && !validAccountType(*input.AccountType) {
		return nil, invalidInput("account_type must be 'savings', 'current' or 'credit'")
	}
	if input.BankID != nil {
		if _, err := s.banks.FindBankByID(ctx, *input.BankID); err != nil {
			if errors.Is(err, store.ErrBankNotFound) {
				return nil, invalidInput("unknown bank")
			}
			return nil, transient("look up bank", err)
		}
	}

	var result *domain.BankAccount
	err := s.accounts.InTransaction(ctx, customerID, func(repo store.AccountRepository) error {
		active, err := repo.FindActiveAccount(ctx, customerID)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return ErrNoActiveAccount
			}
			return transient("find active account", err)
		}
		if active.IsLocked() {
			return ErrLocked
		}
		if requestedNumber != nil && *requestedNumber != active.AccountNumber {
			return ErrImmutableIdentity
		}
		if requestedIFSC != nil && *requestedIFSC != active.IFSCCode {
			return ErrImmutableIdentity
		}

		params := store.UpdateAccountParams{
			BankID:              input.BankID,
			BranchName:          input.BranchName,
			NameAsPerBankRecord: input.NameAsPerBankRecord,
			ChequeImage:         input.ChequeImage,
			IsChequeVerified:    input.IsChequeVerified,
		}
		if input.VerificationMode != nil {
			mode := domain.VerificationMode(*input.VerificationMode)
			params.VerificationMode = &mode
		}
		if input.AccountType != nil {
			accountType := domain.BankAccountType(*input.AccountType)
			params.AccountType = &accountType
		}

		updated, err := repo.UpdateAccount(ctx, active.ID, params)
		if err != nil {
			if errors.Is(err, store.ErrAccountLocked) {
				return ErrLocked
			}
			if errors.Is(err, store.ErrAccountNotFound) {
				return ErrNoActiveAccount
			}
			return transient("update account", err)
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, classify("amend account", err)
	}
	return result, nil
}

// GetActive returns the customer's active account.
func (s *LinkingService) GetActive(ctx context.Context, customerID uuid.UUID) (*domain.BankAccount, error) {
	if customerID == uuid.Nil {
		return nil, invalidInput("customer_id is required")
	}
	account, err := s.accounts.FindActiveAccount(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrNoActiveAccount
		}
		return nil, transient("find active account", err)
	}
	return account, nil
}

// publishActivated emits the activation event after the transaction has
// committed. Best effort: the commit is not revocable, and losing the event
// has no correctness consequence for the linking invariants.
func (s *LinkingService) publishActivated(account *domain.BankAccount, reactivated bool) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := domain.AccountActivatedEvent{
		CustomerID:          account.CustomerID.String(),
		AccountID:           account.ID.String(),
		IFSCCode:            account.IFSCCode,
		AccountNumberMasked: maskAccountNumber(account.AccountNumber),
		Reactivated:         reactivated,
	}
	if err := s.events.Publish(ctx, "account_events", "bank_account.activated", event); err != nil {
		log.Printf("WARN: failed to publish bank_account.activated for account %s: %v", account.ID, err)
	}
}

// classify folds unexpected errors (begin/commit failures, context timeouts)
// into the transient kind while letting taxonomy errors through untouched.
func classify(op string, err error) error {
	for _, known := range []error{
		ErrLimitExceeded, ErrDuplicateAccount, ErrImmutableIdentity,
		ErrLocked, ErrNoActiveAccount, ErrInvalidInput, ErrTransientStorage,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrTransientStorage, op, err)
}

// maskAccountNumber masks an account number, showing only the first and last
// two digits.
func maskAccountNumber(accountNumber string) string {
	if len(accountNumber) > 4 {
		return fmt.Sprintf("%s...%s", accountNumber[:2], accountNumber[len(accountNumber)-2:])
	}
	return "****"
}
