/**
 * @description
 * This file implements the data access layer for bank account records on
 * PostgreSQL. It provides the filtered lookups and atomic updates the
 * linking state machine needs, plus the customer-scoped transaction wrapper.
 *
 * @dependencies
 * - context: For managing request-scoped deadlines and cancellations.
 * - log: For logging database errors.
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 * - The service's internal domain package for the BankAccount model.
 *
 * @notes
 * - InTransaction takes a pg_advisory_xact_lock keyed on the customer id, so
 *   concurrent Register/Amend calls for the same customer serialize while
 *   different customers never contend.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arthapay/bank-linking-service/internal/domain"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, letting the same
// query methods run inside and outside an explicit transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAccountRepository is the PostgreSQL implementation of the
// AccountRepository.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
	q    pgxQuerier
}

// NewPostgresAccountRepository creates a new instance of
// PostgresAccountRepository.
func NewPostgresAccountRepository(db *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: db, q: db}
}

const bankAccountColumns = `
	id, customer_id, bank_id, account_number, ifsc_code, branch_name,
	name_as_per_bank_record, cheque_image, verification_mode,
	verification_status, account_type, is_active, is_cheque_verified,
	created_at, updated_at`

func scanBankAccount(row pgx.Row) (*domain.BankAccount, error) {
	var a domain.BankAccount
	err := row.Scan(
		&a.ID, &a.CustomerID, &a.BankID, &a.AccountNumber, &a.IFSCCode,
		&a.BranchName, &a.NameAsPerBankRecord, &a.ChequeImage,
		&a.VerificationMode, &a.VerificationStatus, &a.AccountType,
		&a.IsActive, &a.IsChequeVerified, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindActiveAccount retrieves the customer's single active account.
func (r *PostgresAccountRepository) FindActiveAccount(ctx context.Context, customerID uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + `
		FROM bank_accounts
		WHERE customer_id = $1 AND is_active = TRUE`
	account, err := scanBankAccount(r.q.QueryRow(ctx, query, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// FindDormantMatch retrieves a customer-owned inactive account with the given
// identity pair, if one exists. Reactivating such a row instead of inserting
// prevents unbounded duplicates when a customer toggles between accounts.
func (r *PostgresAccountRepository) FindDormantMatch(ctx context.Context, customerID uuid.UUID, ifscCode, accountNumber string) (*domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + `
		FROM bank_accounts
		WHERE customer_id = $1 AND ifsc_code = $2 AND account_number = $3
		  AND is_active = FALSE`
	account, err := scanBankAccount(r.q.QueryRow(ctx, query, customerID, ifscCode, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// ExistsGlobally reports whether the identity pair is registered by anyone.
func (r *PostgresAccountRepository) ExistsGlobally(ctx context.Context, ifscCode, accountNumber string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM bank_accounts WHERE ifsc_code = $1 AND account_number = $2
	)`
	var exists bool
	if err := r.q.QueryRow(ctx, query, ifscCode, accountNumber).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CountForCustomer counts every account row the customer owns.
func (r *PostgresAccountRepository) CountForCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM bank_accounts WHERE customer_id = $1`, customerID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeactivateAllForCustomer clears the active flag on all of the customer's
// rows. A no-op when the customer has no active account.
func (r *PostgresAccountRepository) DeactivateAllForCustomer(ctx context.Context, customerID uuid.UUID) error {
	query := `UPDATE bank_accounts
		SET is_active = FALSE, updated_at = NOW()
		WHERE customer_id = $1 AND is_active = TRUE`
	_, err := r.q.Exec(ctx, query, customerID)
	return err
}

// Activate flags exactly one row active.
func (r *PostgresAccountRepository) Activate(ctx context.Context, accountID uuid.UUID) error {
	query := `UPDATE bank_accounts
		SET is_active = TRUE, updated_at = NOW()
		WHERE id = $1`
	result, err := r.q.Exec(ctx, query, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreateAccount inserts a new bank account record.
func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, account *domain.BankAccount) (*domain.BankAccount, error) {
	query := `
		INSERT INTO bank_accounts (
			customer_id, bank_id, account_number, ifsc_code, branch_name,
			name_as_per_bank_record, cheque_image, verification_mode,
			verification_status, account_type, is_active, is_cheque_verified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query,
		account.CustomerID,
		account.BankID,
		account.AccountNumber,
		account.IFSCCode,
		account.BranchName,
		account.NameAsPerBankRecord,
		account.ChequeImage,
		account.VerificationMode,
		account.VerificationStatus,
		account.AccountType,
		account.IsActive,
		account.IsChequeVerified,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			log.Printf("Unique constraint violation on %s while creating bank account", pgErr.ConstraintName)
			return nil, ErrDuplicatePair
		}
		return nil, fmt.Errorf("failed to insert bank account: %w", err)
	}
	return account, nil
}

// UpdateAccount applies non-identity field changes to a row that has not been
// approved. The status guard lives in the WHERE clause so a concurrent
// approval cannot slip a mutation past the lock.
func (r *PostgresAccountRepository) UpdateAccount(ctx context.Context, accountID uuid.UUID, params UpdateAccountParams) (*domain.BankAccount, error) {
	query := `
		UPDATE bank_accounts SET
			bank_id = COALESCE($2, bank_id),
			branch_name = COALESCE($3, branch_name),
			name_as_per_bank_record = COALESCE($4, name_as_per_bank_record),
			cheque_image = COALESCE($5, cheque_image),
			verification_mode = COALESCE($6, verification_mode),
			account_type = COALESCE($7, account_type),
			is_cheque_verified = COALESCE($8, is_cheque_verified),
			updated_at = NOW()
		WHERE id = $1 AND verification_status <> 'approved'
		RETURNING ` + bankAccountColumns
	account, err := scanBankAccount(r.q.QueryRow(ctx, query,
		accountID,
		params.BankID,
		params.BranchName,
		params.NameAsPerBankRecord,
		params.ChequeImage,
		params.VerificationMode,
		params.AccountType,
		params.IsChequeVerified,
	))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// No row matched: either the account does not exist or it is locked.
	var status domain.VerificationStatus
	probeErr := r.q.QueryRow(ctx, `SELECT verification_status FROM bank_accounts WHERE id = $1`, accountID).Scan(&status)
	if probeErr != nil {
		if errors.Is(probeErr, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, probeErr
	}
	if status == domain.VerificationStatusApproved {
		return nil, ErrAccountLocked
	}
	return nil, ErrAccountNotFound
}

// FindAccountByID retrieves one account row by its surrogate key.
func (r *PostgresAccountRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id = $1`
	account, err := scanBankAccount(r.q.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// UpdateVerificationStatus records the verification workflow's decision.
// Approval is terminal, so the guard sits in the WHERE clause: a result that
// races with a just-committed approval touches zero rows instead of
// overwriting the approved status.
func (r *PostgresAccountRepository) UpdateVerificationStatus(ctx context.Context, accountID uuid.UUID, status domain.VerificationStatus) error {
	query := `UPDATE bank_accounts
		SET verification_status = $2, updated_at = NOW()
		WHERE id = $1 AND verification_status <> 'approved'`
	result, err := r.q.Exec(ctx, query, accountID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// No row matched: either the account does not exist or it is approved.
	var current domain.VerificationStatus
	probeErr := r.q.QueryRow(ctx, `SELECT verification_status FROM bank_accounts WHERE id = $1`, accountID).Scan(&current)
	if probeErr != nil {
		if errors.Is(probeErr, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return probeErr
	}
	if current == domain.VerificationStatusApproved {
		return ErrAccountLocked
	}
	return ErrAccountNotFound
}

// InTransaction runs fn against a transaction-bound repository while holding
// an advisory lock scoped to the customer. The lock is released automatically
// at commit or rollback.
func (r *PostgresAccountRepository) InTransaction(ctx context.Context, customerID uuid.UUID, fn func(AccountRepository) error) error {
	if r.pool == nil {
		// Already inside a transaction; advisory xact locks are reentrant
		// within the same transaction, so just run the function.
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, customerID.String()); err != nil {
		return fmt.Errorf("failed to acquire customer lock: %w", err)
	}

	if err := fn(&PostgresAccountRepository{q: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
