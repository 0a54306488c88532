package storage

import (
	"time"
)

// LedgerState is the persisted form of the credential usage ledger.
type LedgerState struct {
	// Usage holds the per-category totals (voice seconds, query calls).
	Usage map[string]float64 `json:"usage"`
	// Credentials holds the accumulated usage per credential name.
	Credentials map[string]float64 `json:"credentials"`
	ActiveIndex int                `json:"active_index"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
