/**
 * @description
 * This file defines the HTTP handlers for the bank-linking-service API.
 * Handlers are responsible for parsing requests, calling the linking service,
 * mapping its error taxonomy onto HTTP status codes, and writing responses.
 *
 * The account resource is a customer-scoped singleton: only "the active
 * account" is addressable. Requests naming an account id are rejected, which
 * keeps arbitrary accounts unreachable through this surface.
 *
 * @dependencies
 * - Standard Go libraries for HTTP, JSON, cookies.
 * - The service's internal packages for app logic, storage, and middleware.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/arthapay/bank-linking-service/internal/app"
	"github.com/arthapay/bank-linking-service/internal/domain"
	"github.com/arthapay/bank-linking-service/internal/store"
	"github.com/arthapay/bank-linking-service/pkg/customerclient"
	"github.com/arthapay/bank-linking-service/pkg/middleware"
)

// CustomerFetcher retrieves customer display attributes. Satisfied by
// customerclient.Client.
type CustomerFetcher interface {
	GetCustomer(ctx context.Context, customerID, authToken string) (*customerclient.Customer, error)
}

// AccountHandler holds the dependencies for account-related handlers.
type AccountHandler struct {
	service   *app.LinkingService
	banks     store.BankRepository
	customers CustomerFetcher
}

// NewAccountHandler creates a new AccountHandler. customers may be nil; the
// display cookies then omit customer attributes.
func NewAccountHandler(service *app.LinkingService, banks store.BankRepository, customers CustomerFetcher) *AccountHandler {
	return &AccountHandler{service: service, banks: banks, customers: customers}
}

// BankHandler holds the dependencies for bank-related handlers.
type BankHandler struct {
	banks store.BankRepository
}

// NewBankHandler creates a new BankHandler.
func NewBankHandler(banks store.BankRepository) *BankHandler {
	return &BankHandler{banks: banks}
}

// CreateAccountRequest defines the expected JSON body for registering an
// account.
type CreateAccountRequest struct {
	BankID              string  `json:"bank_id"`
	AccountNumber       string  `json:"account_number"`
	IFSCCode            string  `json:"ifsc_code"`
	BranchName          string  `json:"branch_name"`
	NameAsPerBankRecord string  `json:"name_as_per_bank_record"`
	ChequeImage         *string `json:"cheque_image,omitempty"`
	VerificationMode    string  `json:"verification_mode,omitempty"`
	AccountType         string  `json:"account_type,omitempty"`
}

// UpdateAccountRequest defines the JSON body for amending the active
// account. Absent fields are left untouched.
type UpdateAccountRequest struct {
	BankID              *string `json:"bank_id,omitempty"`
	AccountNumber       *string `json:"account_number,omitempty"`
	IFSCCode            *string `json:"ifsc_code,omitempty"`
	BranchName          *string `json:"branch_name,omitempty"`
	NameAsPerBankRecord *string `json:"name_as_per_bank_record,omitempty"`
	ChequeImage         *string `json:"cheque_image,omitempty"`
	VerificationMode    *string `json:"verification_mode,omitempty"`
	AccountType         *string `json:"account_type,omitempty"`
	IsChequeVerified    *bool   `json:"is_cheque_verified,omitempty"`
}

// CreateAccount handles registration of a bank account for the
// authenticated customer.
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	customerID, ok := authenticatedCustomerID(w, r)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	bankID, err := uuid.Parse(req.BankID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bank_id must be a valid uuid")
		return
	}

	account, err := h.service.Register(r.Context(), app.RegisterInput{
		CustomerID:          customerID,
		BankID:              bankID,
		AccountNumber:       req.AccountNumber,
		IFSCCode:            req.IFSCCode,
		BranchName:          req.BranchName,
		NameAsPerBankRecord: req.NameAsPerBankRecord,
		ChequeImage:         req.ChequeImage,
		VerificationMode:    req.VerificationMode,
		AccountType:         req.AccountType,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.setDisplayCookies(w, r, account)
	writeJSON(w, http.StatusCreated, account)
}

// GetAccount returns the authenticated customer's active account, with the
// display cookie values overlaid onto the payload when present.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	customerID, ok := authenticatedCustomerID(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetActive(r.Context(), customerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	payload := accountPayload(account)
	overlayDisplayCookies(r, payload)
	writeJSON(w, http.StatusOK, payload)
}

// UpdateAccount amends the authenticated customer's active account.
func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	customerID, ok := authenticatedCustomerID(w, r)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := app.AmendInput{
		AccountNumber:       req.AccountNumber,
		IFSCCode:            req.IFSCCode,
		BranchName:          req.BranchName,
		NameAsPerBankRecord: req.NameAsPerBankRecord,
		ChequeImage:         req.ChequeImage,
		VerificationMode:    req.VerificationMode,
		AccountType:         req.AccountType,
		IsChequeVerified:    req.IsChequeVerified,
	}
	if req.BankID != nil {
		bankID, err := uuid.Parse(*req.BankID)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "bank_id must be a valid uuid")
			return
		}
		input.BankID = &bankID
	}

	account, err := h.service.Amend(r.Context(), customerID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.setDisplayCookies(w, r, account)
	writeJSON(w, http.StatusOK, account)
}

// RejectAccountByID answers any request that names an account id. Only the
// active account is addressable through this API.
func (h *AccountHandler) RejectAccountByID(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound,
		"You are restricted to the active account. Arbitrary accounts are not addressable here.")
}

// ListBanks handles listing the bank reference data.
func (h *BankHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.banks.ListBanks(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to list banks")
		return
	}
	if banks == nil {
		banks = []domain.Bank{}
	}
	writeJSON(w, http.StatusOK, banks)
}

// displayCookieNames are the best-effort presentation cookies set after a
// successful registration or amendment and overlaid on retrieval. They are
// cosmetic; correctness never depends on them.
var displayCookieNames = []string{
	"bank_name",
	"customer_first_name",
	"customer_last_name",
	"customer_email_address",
	"branch_name",
	"created_by",
	"name_as_per_bank_record",
}

// setDisplayCookies snapshots submission-time display data into client-side
// cookies. Failures to resolve the bank or customer are logged and ignored.
func (h *AccountHandler) setDisplayCookies(w http.ResponseWriter, r *http.Request, account *domain.BankAccount) {
	bankName := ""
	if bank, err := h.banks.FindBankByID(r.Context(), account.BankID); err == nil {
		bankName = bank.Name
	} else {
		log.Printf("WARN: could not resolve bank %s for display cookies: %v", account.BankID, err)
	}

	firstName, lastName, email := "", "", ""
	if h.customers != nil {
		token := middleware.GetAuthTokenFromContext(r.Context())
		if customer, err := h.customers.GetCustomer(r.Context(), account.CustomerID.String(), token); err == nil {
			firstName = customer.FirstName
			lastName = customer.LastName
			email = customer.Email
		} else {
			log.Printf("WARN: could not resolve customer %s for display cookies: %v", account.CustomerID, err)
		}
	}

	setCookie(w, "bank_name", bankName)
	setCookie(w, "customer_first_name", firstName)
	setCookie(w, "customer_last_name", lastName)
	setCookie(w, "customer_email_address", email)
	setCookie(w, "branch_name", account.BranchName)
	setCookie(w, "created_by", email)
	setCookie(w, "name_as_per_bank_record", account.NameAsPerBankRecord)
}

func setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:  name,
		Value: url.QueryEscape(value),
		Path:  "/",
	})
}

// accountPayload converts the account into a generic map so display fields
// can be overlaid without touching the domain model.
func accountPayload(account *domain.BankAccount) map[string]interface{} {
	data, err := json.Marshal(account)
	if err != nil {
		return map[string]interface{}{}
	}
	payload := map[string]interface{}{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return map[string]interface{}{}
	}
	return payload
}

// overlayDisplayCookies copies present display cookies over the payload.
func overlayDisplayCookies(r *http.Request, payload map[string]interface{}) {
	for _, name := range displayCookieNames {
		cookie, err := r.Cookie(name)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			continue
		}
		payload[name] = value
	}
}

// authenticatedCustomerID resolves the customer id placed in the context by
// the auth middleware.
func authenticatedCustomerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := middleware.GetCustomerIDFromContext(r.Context())
	if raw == "" {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	customerID, err := uuid.Parse(raw)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return customerID, true
}

// writeServiceError maps the linking error taxonomy onto HTTP status codes.
// The API layer never inspects raw storage errors; everything arriving here
// is already one of the service's kinds.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNoActiveAccount):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrDuplicateAccount):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrLocked):
		writeJSONError(w, http.StatusLocked, err.Error())
	case errors.Is(err, app.ErrLimitExceeded),
		errors.Is(err, app.ErrImmutableIdentity),
		errors.Is(err, app.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrTransientStorage):
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
