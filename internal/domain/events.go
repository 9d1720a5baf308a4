/**
 * @description
 * This file defines the domain models for events crossing the message broker
 * boundary. These structs are the contract with the verification workflow
 * (inbound) and with downstream settlement consumers (outbound).
 *
 * @notes
 * - Having a clear contract for events is crucial for keeping the
 *   verification workflow an opaque external collaborator: all this service
 *   sees of it is the resulting status flip.
 */
package domain

// VerificationResultEvent is received when the external verification workflow
// reaches a decision for a bank account. Status carries the new
// VerificationStatus value.
type VerificationResultEvent struct {
	AccountID string  `json:"account_id"`
	Status    string  `json:"status"`
	Reason    *string `json:"reason,omitempty"`
}

// AccountActivatedEvent is published after a Register commit so downstream
// settlement services can pick up the customer's new active account. The
// account number is masked; consumers needing the full pair read it from the
// store.
type AccountActivatedEvent struct {
	CustomerID          string `json:"customer_id"`
	AccountID           string `json:"account_id"`
	IFSCCode            string `json:"ifsc_code"`
	AccountNumberMasked string `json:"account_number_masked"`
	Reactivated         bool   `json:"reactivated"`
}
