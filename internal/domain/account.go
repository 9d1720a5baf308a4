/**
 * @description
 * This file defines the core domain model for a customer's linked bank account.
 * A customer may register several accounts over time, but exactly one of them
 * is flagged active and is the account used for downstream settlement.
 *
 * @notes
 * - Accounts are never deleted through this service. Switching the active
 *   account deactivates the previous one and retains it for audit, so the
 *   verification history (cheque image, status) survives.
 * - The (AccountNumber, IFSCCode) pair identifies the real-world account and
 *   is unique across all customers, not just within one customer.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// VerificationMode describes how the account ownership is being verified.
type VerificationMode string

const (
	VerificationModeManual        VerificationMode = "manual"
	VerificationModeEVerification VerificationMode = "e_verification"
)

// VerificationStatus is the state of the external verification workflow.
// It is flipped by the verification collaborator, never by the customer.
type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusApproved VerificationStatus = "approved"
	VerificationStatusRejected VerificationStatus = "rejected"
)

// BankAccountType is the product type of the underlying bank account.
type BankAccountType string

const (
	AccountTypeSavings BankAccountType = "savings"
	AccountTypeCurrent BankAccountType = "current"
	AccountTypeCredit  BankAccountType = "credit"
)

// BankAccount represents one customer's registered account at one bank.
type BankAccount struct {
	ID                  uuid.UUID          `json:"id"`
	CustomerID          uuid.UUID          `json:"customer_id"`
	BankID              uuid.UUID          `json:"bank_id"`
	AccountNumber       string             `json:"account_number"`
	IFSCCode            string             `json:"ifsc_code"`
	BranchName          string             `json:"branch_name"`
	NameAsPerBankRecord string             `json:"name_as_per_bank_record"`
	ChequeImage         *string            `json:"cheque_image,omitempty"`
	VerificationMode    VerificationMode   `json:"verification_mode"`
	VerificationStatus  VerificationStatus `json:"verification_status"`
	AccountType         BankAccountType    `json:"account_type"`
	IsActive            bool               `json:"is_active"`
	IsChequeVerified    bool               `json:"is_cheque_verified"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// IsLocked reports whether the record is frozen. Once the external verifier
// has approved an account, no field of it may be mutated.
func (a *BankAccount) IsLocked() bool {
	return a.VerificationStatus == VerificationStatusApproved
}

// SamePair reports whether the account carries the given bank identity pair.
func (a *BankAccount) SamePair(ifscCode, accountNumber string) bool {
	return a.IFSCCode == ifscCode && a.AccountNumber == accountNumber
}
