package accounts

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLedger keeps account totals in memory, suitable for tests and local
// runs without Postgres. Outcomes are idempotent by request id.
type MemoryLedger struct {
	mu       sync.Mutex
	points   map[uuid.UUID]int
	earnings map[uuid.UUID]int64
	applied  map[string]struct{}
}

// NewMemoryLedger constructs an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		points:   make(map[uuid.UUID]int),
		earnings: make(map[uuid.UUID]int64),
		applied:  make(map[string]struct{}),
	}
}

// ApplyOutcome credits the owner once per request id. Anonymous pickups are
// recorded as applied but accrue nothing.
func (m *MemoryLedger) ApplyOutcome(_ context.Context, owner *uuid.UUID, requestID string, points int, earnings int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.applied[requestID]; done {
		return nil
	}
	m.applied[requestID] = struct{}{}

	if owner == nil {
		return nil
	}
	m.points[*owner] += points
	m.earnings[*owner] += earnings
	return nil
}

// Totals returns the accrued points and earnings for an account.
func (m *MemoryLedger) Totals(owner uuid.UUID) (int, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points[owner], m.earnings[owner]
}
