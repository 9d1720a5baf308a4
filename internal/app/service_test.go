package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/arthapay/bank-linking-service/internal/domain"
	"github.com/arthapay/bank-linking-service/internal/store"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AccountActivatedEvent
	fail   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	if event, ok := body.(domain.AccountActivatedEvent); ok {
		p.events = append(p.events, event)
	}
	return nil
}

func (p *recordingPublisher) published() []domain.AccountActivatedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.AccountActivatedEvent, len(p.events))
	copy(out, p.events)
	return out
}

type serviceFixture struct {
	service  *LinkingService
	accounts *store.MemoryAccountRepository
	events   *recordingPublisher
	bankID   uuid.UUID
}

func newServiceFixture(t *testing.T, maxAccounts int) *serviceFixture {
	t.Helper()
	accounts := store.NewMemoryAccountRepository()
	bankID := uuid.New()
	banks := store.NewMemoryBankRepository(domain.Bank{ID: bankID, Name: "State Bank"})
	events := &recordingPublisher{}
	return &serviceFixture{
		service:  NewLinkingService(accounts, banks, events, maxAccounts),
		accounts: accounts,
		events:   events,
		bankID:   bankID,
	}
}

func (f *serviceFixture) register(t *testing.T, customerID uuid.UUID, ifsc, number string) *domain.BankAccount {
	t.Helper()
	account, err := f.service.Register(context.Background(), RegisterInput{
		CustomerID:          customerID,
		BankID:              f.bankID,
		AccountNumber:       number,
		IFSCCode:            ifsc,
		BranchName:          "Main Branch",
		NameAsPerBankRecord: "Asha Rao",
	})
	if err != nil {
		t.Fatalf("Register(%s/%s) failed: %v", ifsc, number, err)
	}
	return account
}

func TestRegisterCreatesActiveAccount(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()

	account, err := f.service.Register(context.Background(), RegisterInput{
		CustomerID:          customerID,
		BankID:              f.bankID,
		AccountNumber:       " 111122223333 ",
		IFSCCode:            "abcd0004321",
		BranchName:          "Main Branch",
		NameAsPerBankRecord: "Asha Rao",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !account.IsActive {
		t.Error("expected newly registered account to be active")
	}
	if account.IFSCCode != "ABCD0004321" {
		t.Errorf("expected ifsc to be normalized to upper case, got %q", account.IFSCCode)
	}
	if account.AccountNumber != "111122223333" {
		t.Errorf("expected account number to be trimmed, got %q", account.AccountNumber)
	}
	if account.VerificationStatus != domain.VerificationStatusPending {
		t.Errorf("expected pending status, got %q", account.VerificationStatus)
	}
	if account.VerificationMode != domain.VerificationModeManual {
		t.Errorf("expected default manual mode, got %q", account.VerificationMode)
	}
	if account.AccountType != domain.AccountTypeSavings {
		t.Errorf("expected default savings type, got %q", account.AccountType)
	}
}

func TestRegisterKeepsSingleActiveAccount(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()

	f.register(t, customerID, "ABCD1234567", "111122223333")
	second := f.register(t, customerID, "WXYZ7654321", "444455556666")

	if got := f.accounts.ActiveCountForCustomer(customerID); got != 1 {
		t.Fatalf("expected exactly 1 active account, got %d", got)
	}
	active, err := f.service.GetActive(context.Background(), customerID)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("expected the latest registration to be active, got %s", active.ID)
	}
	if f.accounts.TotalCount() != 2 {
		t.Errorf("expected 2 stored rows, got %d", f.accounts.TotalCount())
	}
}

func TestRegisterReactivatesDormantMatch(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()

	first := f.register(t, customerID, "ABCD1234567", "111122223333")
	f.register(t, customerID, "WXYZ7654321", "444455556666")

	// Registering the first pair again must recycle the dormant row instead
	// of creating a third one.
	again := f.register(t, customerID, "ABCD1234567", "111122223333")

	if again.ID != first.ID {
		t.Errorf("expected dormant row %s to be reactivated, got new row %s", first.ID, again.ID)
	}
	if !again.IsActive {
		t.Error("expected reactivated account to be active")
	}
	if f.accounts.TotalCount() != 2 {
		t.Errorf("expected 2 stored rows after reactivation, got %d", f.accounts.TotalCount())
	}
	if got := f.accounts.ActiveCountForCustomer(customerID); got != 1 {
		t.Errorf("expected exactly 1 active account, got %d", got)
	}
}

func TestRegisterSamePairTwiceIsNoop(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()

	first := f.register(t, customerID, "ABCD1234567", "111122223333")
	again := f.register(t, customerID, "abcd1234567", "111122223333")

	if again.ID != first.ID {
		t.Errorf("expected the same row back, got %s and %s", first.ID, again.ID)
	}
	if f.accounts.TotalCount() != 1 {
		t.Errorf("expected a single stored row, got %d", f.accounts.TotalCount())
	}
	// The no-op must not republish the activation event.
	if got := len(f.events.published()); got != 1 {
		t.Errorf("expected 1 published event, got %d", got)
	}
}

func TestRegisterRejectsPairOwnedByAnotherCustomer(t *testing.T) {
	f := newServiceFixture(t, 0)
	f.register(t, uuid.New(), "ABCD1234567", "111122223333")

	_, err := f.service.Register(context.Background(), RegisterInput{
		CustomerID:          uuid.New(),
		BankID:              f.bankID,
		AccountNumber:       "111122223333",
		IFSCCode:            "ABCD1234567",
		NameAsPerBankRecord: "Someone Else",
	})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestRegisterEnforcesAccountLimit(t *testing.T) {
	f := newServiceFixture(t, 4)
	customerID := uuid.New()

	for i := 0; i < 4; i++ {
		f.register(t, customerID, "ABCD1234567", fmt.Sprintf("11112222000%d", i))
	}

	_, err := f.service.Register(context.Background(), RegisterInput{
		CustomerID:          customerID,
		BankID:              f.bankID,
		AccountNumber:       "999988887777",
		IFSCCode:            "ABCD1234567",
		NameAsPerBankRecord: "Asha Rao",
	})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded for a 5th distinct account, got %v", err)
	}

	// Reactivating one of the existing four must still work: it does not
	// grow the customer's row count.
	reactivated := f.register(t, customerID, "ABCD1234567", "111122220000")
	if !reactivated.IsActive {
		t.Error("expected reactivated account to be active")
	}
	if f.accounts.TotalCount() != 4 {
		t.Errorf("expected 4 stored rows, got %d", f.accounts.TotalCount())
	}
}

func TestRegisterRejectsUnknownBank(t *testing.T) {
	f := newServiceFixture(t, 0)

	_, err := f.service.Register(context.Background(), RegisterInput{
		CustomerID:          uuid.New(),
		BankID:              uuid.New(),
		AccountNumber:       "111122223333",
		IFSCCode:            "ABCD1234567",
		NameAsPerBankRecord: "Asha Rao",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown bank, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()

	base := RegisterInput{
		CustomerID:          customerID,
		BankID:              f.bankID,
		AccountNumber:       "111122223333",
		IFSCCode:            "ABCD1234567",
		NameAsPerBankRecord: "Asha Rao",
	}

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"short ifsc", func(in *RegisterInput) { in.IFSCCode = "ABCD123" }},
		{"ifsc without letter prefix", func(in *RegisterInput) { in.IFSCCode = "1BCD1234567" }},
		{"ifsc with symbol", func(in *RegisterInput) { in.IFSCCode = "ABCD12345-7" }},
		{"empty account number", func(in *RegisterInput) { in.AccountNumber = "   " }},
		{"short account number", func(in *RegisterInput) { in.AccountNumber = "123" }},
		{"non-numeric account number", func(in *RegisterInput) { in.AccountNumber = "12AB5678" }},
		{"missing name", func(in *RegisterInput) { in.NameAsPerBankRecord = " " }},
		{"bad verification mode", func(in *RegisterInput) { in.VerificationMode = "psychic" }},
		{"bad account type", func(in *RegisterInput) { in.AccountType = "offshore" }},
		{"missing customer", func(in *RegisterInput) { in.CustomerID = uuid.Nil }},
		{"missing bank", func(in *RegisterInput) { in.BankID = uuid.Nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := base
			tc.mutate(&input)
			if _, err := f.service.Register(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if f.accounts.TotalCount() != 0 {
		t.Errorf("expected no rows after failed validations, got %d", f.accounts.TotalCount())
	}
}

func TestAmendUpdatesMutableFields(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()
	f.register(t, customerID, "ABCD1234567", "111122223333")

	branch := "Koramangala"
	name := "Asha R Rao"
	verified := true
	updated, err := f.service.Amend(context.Background(), customerID, AmendInput{
		BranchName:          &branch,
		NameAsPerBankRecord: &name,
		IsChequeVerified:    &verified,
	})
	if err != nil {
		t.Fatalf("Amend failed: %v", err)
	}

	if updated.BranchName != branch {
		t.Errorf("expected branch %q, got %q", branch, updated.BranchName)
	}
	if updated.NameAsPerBankRecord != name {
		t.Errorf("expected name %q, got %q", name, updated.NameAsPerBankRecord)
	}
	if !updated.IsChequeVerified {
		t.Error("expected cheque verified flag to be set")
	}
	if updated.AccountNumber != "111122223333" || updated.IFSCCode != "ABCD1234567" {
		t.Error("identity fields must survive an amendment untouched")
	}
}

func TestAmendRejectsIdentityChange(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()
	f.register(t, customerID, "ABCD1234567", "111122223333")

	otherNumber := "444455556666"
	if _, err := f.service.Amend(context.Background(), customerID, AmendInput{AccountNumber: &otherNumber}); !errors.Is(err, ErrImmutableIdentity) {
		t.Errorf("expected ErrImmutableIdentity for account number change, got %v", err)
	}

	otherIFSC := "WXYZ7654321"
	if _, err := f.service.Amend(context.Background(), customerID, AmendInput{IFSCCode: &otherIFSC}); !errors.Is(err, ErrImmutableIdentity) {
		t.Errorf("expected ErrImmutableIdentity for ifsc change, got %v", err)
	}

	// Echoing the current identity back is not a change.
	sameNumber := "111122223333"
	sameIFSC := "abcd1234567"
	if _, err := f.service.Amend(context.Background(), customerID, AmendInput{AccountNumber: &sameNumber, IFSCCode: &sameIFSC}); err != nil {
		t.Errorf("expected echoing the current identity to succeed, got %v", err)
	}
}

func TestAmendLockedAccount(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()
	f.accounts.Seed(&domain.BankAccount{
		CustomerID:         customerID,
		BankID:             f.bankID,
		AccountNumber:      "111122223333",
		IFSCCode:           "ABCD1234567",
		VerificationStatus: domain.VerificationStatusApproved,
		IsActive:           true,
	})

	branch := "Koramangala"
	if _, err := f.service.Amend(context.Background(), customerID, AmendInput{BranchName: &branch}); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked for approved account, got %v", err)
	}
}

func TestAmendWithoutActiveAccount(t *testing.T) {
	f := newServiceFixture(t, 0)

	branch := "Koramangala"
	if _, err := f.service.Amend(context.Background(), uuid.New(), AmendInput{BranchName: &branch}); !errors.Is(err, ErrNoActiveAccount) {
		t.Fatalf("expected ErrNoActiveAccount, got %v", err)
	}
}

func TestGetActive(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()

	if _, err := f.service.GetActive(context.Background(), customerID); !errors.Is(err, ErrNoActiveAccount) {
		t.Fatalf("expected ErrNoActiveAccount before any registration, got %v", err)
	}

	registered := f.register(t, customerID, "ABCD1234567", "111122223333")
	active, err := f.service.GetActive(context.Background(), customerID)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if active.ID != registered.ID {
		t.Errorf("expected account %s, got %s", registered.ID, active.ID)
	}
}

func TestRegisterPublishesActivationEvent(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()

	f.register(t, customerID, "ABCD1234567", "111122223333")
	f.register(t, customerID, "WXYZ7654321", "444455556666")
	f.register(t, customerID, "ABCD1234567", "111122223333")

	events := f.events.published()
	if len(events) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(events))
	}
	if events[0].Reactivated || events[1].Reactivated {
		t.Error("fresh registrations must not be flagged as reactivations")
	}
	if !events[2].Reactivated {
		t.Error("expected the third event to be flagged as a reactivation")
	}
	if events[0].AccountNumberMasked != "11...33" {
		t.Errorf("expected masked account number, got %q", events[0].AccountNumberMasked)
	}
}

func TestRegisterSurvivesPublishFailure(t *testing.T) {
	f := newServiceFixture(t, 0)
	f.events.fail = true

	account := f.register(t, uuid.New(), "ABCD1234567", "111122223333")
	if !account.IsActive {
		t.Error("registration must succeed even when the broker is down")
	}
}

func TestConcurrentRegistersKeepOneActive(t *testing.T) {
	f := newServiceFixture(t, 100)
	customerID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.Register(context.Background(), RegisterInput{
				CustomerID:          customerID,
				BankID:              f.bankID,
				AccountNumber:       fmt.Sprintf("1111222200%02d", i),
				IFSCCode:            "ABCD1234567",
				NameAsPerBankRecord: "Asha Rao",
			})
			if err != nil {
				t.Errorf("concurrent Register failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := f.accounts.ActiveCountForCustomer(customerID); got != 1 {
		t.Fatalf("expected exactly 1 active account after concurrent registers, got %d", got)
	}
	if f.accounts.TotalCount() != 20 {
		t.Errorf("expected 20 stored rows, got %d", f.accounts.TotalCount())
	}
}

func TestConcurrentSamePairRegisters(t *testing.T) {
	f := newServiceFixture(t, 0)
	customerID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Register(context.Background(), RegisterInput{
				CustomerID:          customerID,
				BankID:              f.bankID,
				AccountNumber:       "111122223333",
				IFSCCode:            "ABCD1234567",
				NameAsPerBankRecord: "Asha Rao",
			})
			if err != nil {
				t.Errorf("concurrent Register failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.accounts.TotalCount() != 1 {
		t.Fatalf("expected a single stored row, got %d", f.accounts.TotalCount())
	}
	if got := f.accounts.ActiveCountForCustomer(customerID); got != 1 {
		t.Fatalf("expected exactly 1 active account, got %d", got)
	}
}

func TestMaskAccountNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"111122223333", "11...33"},
		{"12345", "12...45"},
		{"1234", "****"},
		{"", "****"},
	}
	for _, tc := range tests {
		if got := maskAccountNumber(tc.in); got != tc.want {
			t.Errorf("maskAccountNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
