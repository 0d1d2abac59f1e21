package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/haulite/internal/dispatch/domain"
	"github.com/example/haulite/internal/dispatch/ledger"
	"github.com/example/haulite/internal/dispatch/route"
	"github.com/example/haulite/internal/geo"
)

// Config holds the dispatcher tunables.
type Config struct {
	// ArrivalRadiusM is the proximity threshold for stop arrival events.
	ArrivalRadiusM float64
	// SnapTimeout bounds the road-snapping call to the route provider.
	SnapTimeout time.Duration
	// AvgSpeedKMH feeds arrival estimates when no routing engine is involved.
	AvgSpeedKMH float64
}

// Dispatcher owns the mutable dispatch state: the pickup ledger, the active
// dumpsite, the truck position and the last computed route. A single mutex
// serializes every inbound operation, so events are published in the order
// state changes were applied.
type Dispatcher struct {
	ledger   *ledger.Ledger
	accounts domain.AccountLedger
	events   domain.EventPublisher
	provider domain.RouteProvider
	clock    domain.Clock
	logger   *zap.Logger
	policy   domain.AwardPolicy
	cfg      Config

	mu        sync.Mutex
	dumpsite  *domain.Dumpsite
	truck     *domain.TruckPosition
	lastRoute *domain.Route
	routeGen  uint64
}

// Snapshot is the atomic reconnect payload.
type Snapshot struct {
	Requests      []domain.PickupRequest `json:"requests"`
	Dumpsite      *domain.Dumpsite       `json:"dumpsite,omitempty"`
	TruckPosition *domain.TruckPosition  `json:"truck_position,omitempty"`
	LastRoute     *domain.Route          `json:"last_route,omitempty"`
	AwardPolicy   domain.AwardPolicy     `json:"award_policy"`
}

// New constructs a Dispatcher with the required collaborators. The route
// provider may be nil, in which case routes stay straight-line.
func New(lg *ledger.Ledger, accounts domain.AccountLedger, events domain.EventPublisher, provider domain.RouteProvider, clock domain.Clock, logger *zap.Logger, policy domain.AwardPolicy, cfg Config) *Dispatcher {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArrivalRadiusM <= 0 {
		cfg.ArrivalRadiusM = 50
	}
	if cfg.SnapTimeout <= 0 {
		cfg.SnapTimeout = 2 * time.Second
	}
	if cfg.AvgSpeedKMH <= 0 {
		cfg.AvgSpeedKMH = 30
	}
	if policy.StandardPoints <= 0 {
		policy.StandardPoints = 10
	}
	if policy.BulkRate <= 0 {
		policy.BulkRate = 0.05
	}
	return &Dispatcher{
		ledger:   lg,
		accounts: accounts,
		events:   events,
		provider: provider,
		clock:    clock,
		logger:   logger,
		policy:   policy,
		cfg:      cfg,
	}
}

// Policy returns the configured award policy.
func (d *Dispatcher) Policy() domain.AwardPolicy { return d.policy }

// UpsertPickup creates or, while still pending, updates a pickup request.
// Re-requesting an already resolved id returns the existing record untouched.
func (d *Dispatcher) UpsertPickup(ctx context.Context, id string, owner *uuid.UUID, location domain.GeoPoint, kind domain.PickupKind, declaredPrice int64) (domain.PickupRequest, error) {
	if id == "" {
		return domain.PickupRequest{}, errors.New("pickup id must be non-empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	req, applied := d.ledger.Upsert(id, owner, location, kind, declaredPrice)
	if applied {
		pickupsTotal.Inc()
		d.publish(ctx, domain.DispatchEvent{Type: domain.EventPickupUpserted, Request: &req})
	}
	return req, nil
}

// RemovePickup drops a request on owner disconnect. Only pending requests are
// removed; disconnecting after resolution has no ledger effect.
func (d *Dispatcher) RemovePickup(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	req, removed := d.ledger.Remove(id)
	if removed {
		d.publish(ctx, domain.DispatchEvent{Type: domain.EventPickupRemoved, RequestID: req.ID})
	}
	return removed
}

// SetDumpsite replaces the active dumpsite. In-flight routes keep the anchor
// they were computed with.
func (d *Dispatcher) SetDumpsite(ctx context.Context, label string, location domain.GeoPoint) domain.Dumpsite {
	d.mu.Lock()
	defer d.mu.Unlock()

	site := domain.Dumpsite{Label: label, Location: location}
	d.dumpsite = &site
	d.publish(ctx, domain.DispatchEvent{Type: domain.EventDumpsiteUpdated, Dumpsite: &site})
	return site
}

// ComputeRoute builds a fresh nearest-neighbor route over all pending pickups,
// replacing any prior route, and kicks off a best-effort road-snapping pass in
// the background. The straight-line route is returned immediately.
func (d *Dispatcher) ComputeRoute(ctx context.Context) (domain.Route, error) {
	timer := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dumpsite == nil {
		return domain.Route{}, domain.ErrNoDumpsite
	}
	pending := d.ledger.Pending()
	if len(pending) == 0 {
		return domain.Route{}, domain.ErrNoPendingStops
	}

	stops := make([]route.Stop, 0, len(pending))
	for _, req := range pending {
		stops = append(stops, route.Stop{ID: req.ID, Location: req.Location})
	}

	points, err := route.Plan(d.dumpsite.Location, stops)
	if err != nil {
		return domain.Route{}, err
	}

	d.routeGen++
	rt := domain.Route{
		Points:     points,
		Generation: d.routeGen,
		ComputedAt: d.clock.Now(),
	}
	d.lastRoute = &rt
	routeComputeSeconds.Observe(time.Since(timer).Seconds())
	d.publish(ctx, domain.DispatchEvent{Type: domain.EventRouteComputed, Route: &rt})

	if d.provider != nil {
		go d.snapRoute(rt.Generation, points)
	}
	return rt, nil
}

// snapRoute asks the routing engine for road geometry and applies it only if
// no newer route computation superseded this generation in the meantime.
// Failures degrade silently to the straight-line route.
func (d *Dispatcher) snapRoute(gen uint64, waypoints []domain.GeoPoint) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SnapTimeout)
	defer cancel()

	snapped, err := d.provider.Snap(ctx, waypoints)
	if err != nil {
		routeSnapFallbackTotal.Inc()
		d.logger.Debug("road snapping unavailable, keeping straight-line route",
			zap.Uint64("generation", gen), zap.Error(err))
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastRoute == nil || d.routeGen != gen {
		routeSnapStaleTotal.Inc()
		return
	}
	rt := domain.Route{
		Points:     snapped,
		Generation: gen,
		Snapped:    true,
		ComputedAt: d.lastRoute.ComputedAt,
	}
	d.lastRoute = &rt
	d.publish(context.Background(), domain.DispatchEvent{Type: domain.EventRouteComputed, Route: &rt})
}

// ReportPosition applies a last-write-wins truck position update, broadcasts
// it (the reporting client identified by origin is excluded from the echo) and
// synchronously emits an arrival event for every pending pickup within the
// arrival radius. Arrival is advisory and never mutates request status.
func (d *Dispatcher) ReportPosition(ctx context.Context, origin string, p domain.GeoPoint) []domain.PickupRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	pos := domain.TruckPosition{Point: p, ReportedAt: d.clock.Now()}
	d.truck = &pos
	d.publish(ctx, domain.DispatchEvent{Type: domain.EventTruckMoved, Origin: origin, Position: &p})

	var arrivals []domain.PickupRequest
	for _, req := range d.ledger.Pending() {
		if geo.DistanceMeters(p, req.Location) <= d.cfg.ArrivalRadiusM {
			req := req
			arrivals = append(arrivals, req)
			arrivalsTotal.Inc()
			d.publish(ctx, domain.DispatchEvent{Type: domain.EventStopArrived, Request: &req})
		}
	}
	return arrivals
}

// Resolve finalizes a pickup as success or failed. On success the award policy
// is applied and the outcome pushed to the account ledger exactly once; a
// second resolution attempt is rejected without touching the award.
func (d *Dispatcher) Resolve(ctx context.Context, id string, outcome domain.RequestStatus, declaredPrice int64) (domain.PickupRequest, error) {
	if !outcome.Terminal() {
		return domain.PickupRequest{}, fmt.Errorf("invalid outcome %q", outcome)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.ledger.Get(id)
	if !ok {
		return domain.PickupRequest{}, domain.ErrNotFound
	}

	var points int
	var earnings int64
	if outcome == domain.StatusSuccess {
		price := existing.DeclaredPrice
		if declaredPrice > 0 {
			price = declaredPrice
		}
		points, earnings = d.policy.Award(existing.Kind, price)
	}

	resolved, err := d.ledger.Resolve(id, outcome, points, earnings)
	if err != nil {
		return resolved, err
	}
	resolutionsTotal.WithLabelValues(string(outcome)).Inc()

	if outcome == domain.StatusSuccess && d.accounts != nil {
		if err := d.accounts.ApplyOutcome(ctx, resolved.OwnerID, resolved.ID, points, earnings); err != nil {
			accountApplyFailTotal.Inc()
			d.logger.Error("account outcome apply failed",
				zap.String("request_id", resolved.ID), zap.Error(err))
		}
	}

	d.publish(ctx, domain.DispatchEvent{
		Type:     domain.EventPickupResolved,
		Request:  &resolved,
		Outcome:  outcome,
		Points:   resolved.PointsAwarded,
		Earnings: resolved.EarningsAwarded,
	})
	return resolved, nil
}

// EstimateArrival approximates how long the truck needs to reach a point,
// using haversine distance at the configured average city speed.
func (d *Dispatcher) EstimateArrival(target domain.GeoPoint) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.truck == nil {
		return 0, false
	}
	metersPerSecond := d.cfg.AvgSpeedKMH * 1000 / 3600
	sec := geo.Haversine(d.truck.Point, target) / metersPerSecond
	return time.Duration(sec * float64(time.Second)), true
}

// State returns the atomic reconnect snapshot.
func (d *Dispatcher) State() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Requests:      d.ledger.All(),
		Dumpsite:      d.dumpsite,
		TruckPosition: d.truck,
		LastRoute:     d.lastRoute,
		AwardPolicy:   d.policy,
	}
}

// publish fans the event out while the state lock is held so observers see
// changes in application order. Delivery is best effort.
func (d *Dispatcher) publish(ctx context.Context, event domain.DispatchEvent) {
	if d.events == nil {
		return
	}
	if err := d.events.Publish(ctx, event); err != nil {
		d.logger.Warn("event publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
