/**
 * @description
 * This file contains the event handler that applies verification decisions
 * from the external verification workflow. The workflow itself is opaque to
 * this service; all it delivers is the resulting status for one account.
 *
 * @dependencies
 * - context, encoding/json, log: Standard Go libraries.
 * - The service's internal packages for domain models and storage.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/arthapay/bank-linking-service/internal/domain"
	"github.com/arthapay/bank-linking-service/internal/store"
)

// VerificationEventHandler processes verification result events.
type VerificationEventHandler struct {
	repo store.AccountRepository
}

// NewVerificationEventHandler creates a new VerificationEventHandler.
func NewVerificationEventHandler(repo store.AccountRepository) *VerificationEventHandler {
	return &VerificationEventHandler{repo: repo}
}

// HandleVerificationResult processes one verification result message. It
// returns true to acknowledge the message, or false to requeue it after a
// transient storage failure.
func (h *VerificationEventHandler) HandleVerificationResult(body []byte) bool {
	var event domain.VerificationResultEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling verification result event: %v", err)
		return true // Acknowledge malformed message.
	}

	accountID, err := uuid.Parse(event.AccountID)
	if err != nil {
		log.Printf("Verification result event carries invalid account id %q; acking", event.AccountID)
		return true
	}

	status := domain.VerificationStatus(event.Status)
	switch status {
	case domain.VerificationStatusApproved, domain.VerificationStatusRejected, domain.VerificationStatusPending:
	default:
		log.Printf("Verification result event carries unknown status %q for account %s; acking", event.Status, accountID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The approval-is-terminal guard lives in the write itself, so a result
	// racing with a concurrent approval cannot overwrite the approved row.
	if err := h.repo.UpdateVerificationStatus(ctx, accountID, status); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			log.Printf("CRITICAL: Verification result for unknown account %s. Acknowledging to avoid requeue loop.", accountID)
			return true
		}
		if errors.Is(err, store.ErrAccountLocked) {
			log.Printf("WARN: Ignoring verification result %q for already-approved account %s", event.Status, accountID)
			return true
		}
		log.Printf("ERROR: Failed to update verification status for account %s: %v", accountID, err)
		return false // Retryable database error.
	}

	if event.Reason != nil {
		log.Printf("Applied verification status %q to account %s (reason: %s)", status, accountID, *event.Reason)
	} else {
		log.Printf("Applied verification status %q to account %s", status, accountID)
	}
	return true
}
