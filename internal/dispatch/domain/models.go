package domain

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// RequestStatus tracks the lifecycle of a pickup request.
type RequestStatus string

const (
	StatusPending RequestStatus = "pending"
	StatusSuccess RequestStatus = "success"
	StatusFailed  RequestStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s RequestStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// PickupKind distinguishes flat-award pickups from price-based bulk pickups.
type PickupKind string

const (
	KindStandard PickupKind = "standard"
	KindBulk     PickupKind = "bulk"
)

var (
	ErrNotFound        = errors.New("pickup request not found")
	ErrAlreadyResolved = errors.New("pickup request already resolved")
	ErrNoDumpsite      = errors.New("no dumpsite configured")
	ErrNoPendingStops  = errors.New("no pending pickups to route")
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PickupRequest is a resident's ask to have waste collected at a location.
// The id is an opaque caller-supplied identifier, stable per requesting client.
type PickupRequest struct {
	ID              string        `json:"id"`
	OwnerID         *uuid.UUID    `json:"owner_id,omitempty"`
	Location        GeoPoint      `json:"location"`
	Kind            PickupKind    `json:"kind"`
	DeclaredPrice   int64         `json:"declared_price,omitempty"`
	Status          RequestStatus `json:"status"`
	PointsAwarded   int           `json:"points_awarded"`
	EarningsAwarded int64         `json:"earnings_awarded"`
	RequestedAt     time.Time     `json:"requested_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
}

// Dumpsite is the fixed start and end anchor of a collection route.
// Exactly one is active per dispatcher; setting it overwrites the previous one.
type Dumpsite struct {
	Label    string   `json:"label,omitempty"`
	Location GeoPoint `json:"location"`
}

// TruckPosition is the single last-write-wins truck location.
type TruckPosition struct {
	Point      GeoPoint  `json:"point"`
	ReportedAt time.Time `json:"reported_at"`
}

// Route is an ordered point sequence starting and ending at the dumpsite that
// was active when it was computed. Recomputed wholesale, never patched.
type Route struct {
	Points     []GeoPoint `json:"points"`
	Generation uint64     `json:"generation"`
	Snapped    bool       `json:"snapped"`
	ComputedAt time.Time  `json:"computed_at"`
}

type EventType string

const (
	EventPickupUpserted  EventType = "pickup_upserted"
	EventPickupRemoved   EventType = "pickup_removed"
	EventDumpsiteUpdated EventType = "dumpsite_updated"
	EventRouteComputed   EventType = "route_computed"
	EventTruckMoved      EventType = "truck_moved"
	EventStopArrived     EventType = "stop_arrived"
	EventPickupResolved  EventType = "pickup_resolved"
)

// DispatchEvent is the fan-out envelope for every state change. Origin names
// the reporting client so broadcasters can suppress its own echo.
type DispatchEvent struct {
	Type      EventType      `json:"type"`
	Origin    string         `json:"-"`
	Request   *PickupRequest `json:"request,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Dumpsite  *Dumpsite      `json:"dumpsite,omitempty"`
	Route     *Route         `json:"route,omitempty"`
	Position  *GeoPoint      `json:"position,omitempty"`
	Outcome   RequestStatus  `json:"outcome,omitempty"`
	Points    int            `json:"points,omitempty"`
	Earnings  int64          `json:"earnings,omitempty"`
}

// EventPublisher delivers events to connected observers, at most once.
type EventPublisher interface {
	Publish(ctx context.Context, event DispatchEvent) error
}

// AccountLedger owns persisted per-account point and earning totals.
// Implementations must be idempotent by request id so a resolution is applied
// exactly once.
type AccountLedger interface {
	ApplyOutcome(ctx context.Context, owner *uuid.UUID, requestID string, points int, earnings int64) error
}

// RouteProvider turns an ordered waypoint list into road-following geometry.
type RouteProvider interface {
	Snap(ctx context.Context, waypoints []GeoPoint) ([]GeoPoint, error)
}

// AwardPolicy is the single configured source of truth for pickup awards, so
// the estimate shown to a resident and the points actually granted agree.
type AwardPolicy struct {
	StandardPoints int     `json:"standard_points"`
	BulkRate       float64 `json:"bulk_rate"`
}

// Award returns the points and collector earnings for a successful pickup.
// Bulk pickups award a fraction of the declared price, standard pickups a
// flat amount.
func (p AwardPolicy) Award(kind PickupKind, declaredPrice int64) (int, int64) {
	if kind == KindBulk {
		share := int64(math.Round(float64(declaredPrice) * p.BulkRate))
		if share < 0 {
			share = 0
		}
		return int(share), share
	}
	return p.StandardPoints, 0
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
