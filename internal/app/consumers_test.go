package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/arthapay/bank-linking-service/internal/domain"
	"github.com/arthapay/bank-linking-service/internal/store"
)

// failingAccountRepository injects storage failures into the handler.
type failingAccountRepository struct {
	store.AccountRepository
	updateErr error
}

func (r *failingAccountRepository) UpdateVerificationStatus(ctx context.Context, accountID uuid.UUID, status domain.VerificationStatus) error {
	return r.updateErr
}

func verificationBody(t *testing.T, accountID, status string) []byte {
	t.Helper()
	body, err := json.Marshal(domain.VerificationResultEvent{AccountID: accountID, Status: status})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestHandleVerificationResultApproves(t *testing.T) {
	repo := store.NewMemoryAccountRepository()
	seeded := repo.Seed(&domain.BankAccount{
		CustomerID:         uuid.New(),
		AccountNumber:      "111122223333",
		IFSCCode:           "ABCD1234567",
		VerificationStatus: domain.VerificationStatusPending,
		IsActive:           true,
	})
	handler := NewVerificationEventHandler(repo)

	if ack := handler.HandleVerificationResult(verificationBody(t, seeded.ID.String(), "approved")); !ack {
		t.Fatal("expected message to be acknowledged")
	}

	account, err := repo.FindAccountByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if account.VerificationStatus != domain.VerificationStatusApproved {
		t.Errorf("expected approved status, got %q", account.VerificationStatus)
	}
	if !account.IsLocked() {
		t.Error("approved account must report as locked")
	}
}

func TestHandleVerificationResultIgnoresApprovedAccount(t *testing.T) {
	repo := store.NewMemoryAccountRepository()
	seeded := repo.Seed(&domain.BankAccount{
		CustomerID:         uuid.New(),
		AccountNumber:      "111122223333",
		IFSCCode:           "ABCD1234567",
		VerificationStatus: domain.VerificationStatusApproved,
		IsActive:           true,
	})
	handler := NewVerificationEventHandler(repo)

	if ack := handler.HandleVerificationResult(verificationBody(t, seeded.ID.String(), "rejected")); !ack {
		t.Fatal("expected message to be acknowledged")
	}

	account, _ := repo.FindAccountByID(context.Background(), seeded.ID)
	if account.VerificationStatus != domain.VerificationStatusApproved {
		t.Errorf("approval is terminal; status changed to %q", account.VerificationStatus)
	}
}

func TestHandleVerificationResultAcksBadMessages(t *testing.T) {
	handler := NewVerificationEventHandler(store.NewMemoryAccountRepository())

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte("{not json")},
		{"invalid account id", verificationBody(t, "not-a-uuid", "approved")},
		{"unknown status", verificationBody(t, uuid.NewString(), "vaporized")},
		{"unknown account", verificationBody(t, uuid.NewString(), "approved")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if ack := handler.HandleVerificationResult(tc.body); !ack {
				t.Error("poison messages must be acknowledged, not requeued")
			}
		})
	}
}

func TestHandleVerificationResultRequeuesOnStorageFailure(t *testing.T) {
	handler := NewVerificationEventHandler(&failingAccountRepository{updateErr: errors.New("connection reset")})
	if ack := handler.HandleVerificationResult(verificationBody(t, uuid.NewString(), "approved")); ack {
		t.Error("expected nack on transient update failure")
	}
}

func TestHandleVerificationResultAcksWhenWriteReportsLocked(t *testing.T) {
	// A result can race with an approval that commits between message
	// delivery and the status write. The repository reports the row as
	// locked and the message must be dropped, not requeued.
	handler := NewVerificationEventHandler(&failingAccountRepository{updateErr: store.ErrAccountLocked})
	if ack := handler.HandleVerificationResult(verificationBody(t, uuid.NewString(), "rejected")); !ack {
		t.Error("expected ack when the write loses against a committed approval")
	}
}
