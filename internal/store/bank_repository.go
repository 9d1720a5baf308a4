/**
 * @description
 * This file implements the data access layer for the bank reference table.
 * Banks are master data owned by a separate ingestion pipeline; this service
 * only ever reads them, to validate bank ids on registration and to supply
 * display names and logos.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 * - The service's internal domain package for the Bank model.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arthapay/bank-linking-service/internal/domain"
)

// PostgresBankRepository is the PostgreSQL implementation of the
// BankRepository.
type PostgresBankRepository struct {
	db *pgxpool.Pool
}

// NewPostgresBankRepository creates a new instance of PostgresBankRepository.
func NewPostgresBankRepository(db *pgxpool.Pool) *PostgresBankRepository {
	return &PostgresBankRepository{db: db}
}

// FindBankByID retrieves one bank by id.
func (r *PostgresBankRepository) FindBankByID(ctx context.Context, bankID uuid.UUID) (*domain.Bank, error) {
	var bank domain.Bank
	query := `SELECT id, name, logo, created_at FROM banks WHERE id = $1`
	err := r.db.QueryRow(ctx, query, bankID).Scan(&bank.ID, &bank.Name, &bank.Logo, &bank.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBankNotFound
		}
		return nil, fmt.Errorf("failed to find bank: %w", err)
	}
	return &bank, nil
}

// ListBanks retrieves all banks, ordered by name for display.
func (r *PostgresBankRepository) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	query := `SELECT id, name, logo, created_at FROM banks ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query banks: %w", err)
	}
	defer rows.Close()

	var banks []domain.Bank
	for rows.Next() {
		var bank domain.Bank
		if err := rows.Scan(&bank.ID, &bank.Name, &bank.Logo, &bank.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank row: %w", err)
		}
		banks = append(banks, bank)
	}
	return banks, rows.Err()
}
