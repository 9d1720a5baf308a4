/**
 * @description
 * This file defines the Bank reference model. Banks are read-only master data
 * from this service's perspective; rows are managed by a separate reference
 * data pipeline. Only display attributes live here.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bank is a bank known to the platform. The name and logo are presentation
// data and never participate in invariant enforcement.
type Bank struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Logo      string    `json:"logo"`
	CreatedAt time.Time `json:"created_at"`
}
