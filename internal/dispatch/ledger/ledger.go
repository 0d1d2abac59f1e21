package ledger

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/example/haulite/internal/dispatch/domain"
)

// Ledger is the in-memory source of truth for pickup requests. All accessors
// copy records out, so callers can never mutate stored state directly.
type Ledger struct {
	mu       sync.RWMutex
	requests map[string]domain.PickupRequest
	clock    domain.Clock
}

// New constructs an empty ledger.
func New(clock domain.Clock) *Ledger {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Ledger{requests: make(map[string]domain.PickupRequest), clock: clock}
}

// Upsert creates a pending request or, while still pending, replaces its
// location and pricing so a client can move its pin before anyone responds.
// A terminal record is left untouched and returned with applied=false.
func (l *Ledger) Upsert(id string, owner *uuid.UUID, location domain.GeoPoint, kind domain.PickupKind, declaredPrice int64) (domain.PickupRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.requests[id]; ok {
		if existing.Status.Terminal() {
			return existing, false
		}
		existing.Location = location
		if kind != "" {
			existing.Kind = kind
		}
		existing.DeclaredPrice = declaredPrice
		l.requests[id] = existing
		return existing, true
	}

	if kind == "" {
		kind = domain.KindStandard
	}
	req := domain.PickupRequest{
		ID:            id,
		OwnerID:       owner,
		Location:      location,
		Kind:          kind,
		DeclaredPrice: declaredPrice,
		Status:        domain.StatusPending,
		RequestedAt:   l.clock.Now(),
	}
	l.requests[id] = req
	return req, true
}

// Remove deletes a request while it is still pending. Terminal records survive
// so points and earnings stay reconcilable after the owner disconnects.
func (l *Ledger) Remove(id string) (domain.PickupRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[id]
	if !ok || req.Status.Terminal() {
		return domain.PickupRequest{}, false
	}
	delete(l.requests, id)
	return req, true
}

// Resolve finalizes a pending request. Points and earnings are supplied by the
// caller's award policy and only stick on success.
func (l *Ledger) Resolve(id string, outcome domain.RequestStatus, points int, earnings int64) (domain.PickupRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[id]
	if !ok {
		return domain.PickupRequest{}, domain.ErrNotFound
	}
	if req.Status.Terminal() {
		return req, domain.ErrAlreadyResolved
	}

	now := l.clock.Now()
	req.Status = outcome
	req.ResolvedAt = &now
	if outcome == domain.StatusSuccess {
		req.PointsAwarded = points
		req.EarningsAwarded = earnings
	}
	l.requests[id] = req
	return req, nil
}

// Get returns a copy of the stored request.
func (l *Ledger) Get(id string) (domain.PickupRequest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	req, ok := l.requests[id]
	return req, ok
}

// Pending returns pending requests sorted by id for deterministic iteration.
func (l *Ledger) Pending() []domain.PickupRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.PickupRequest, 0, len(l.requests))
	for _, req := range l.requests {
		if req.Status == domain.StatusPending {
			out = append(out, req)
		}
	}
	sortByID(out)
	return out
}

// All returns every stored request sorted by id.
func (l *Ledger) All() []domain.PickupRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.PickupRequest, 0, len(l.requests))
	for _, req := range l.requests {
		out = append(out, req)
	}
	sortByID(out)
	return out
}

func sortByID(reqs []domain.PickupRequest) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })
}
