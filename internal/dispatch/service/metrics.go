package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pickupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_pickups_total",
		Help: "Total pickup requests created or updated.",
	})

	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_resolutions_total",
		Help: "Total pickup resolutions grouped by outcome.",
	}, []string{"outcome"})

	arrivalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_arrivals_total",
		Help: "Total advisory stop arrival events emitted.",
	})

	routeComputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_route_compute_seconds",
		Help:    "Time spent computing the nearest-neighbor route.",
		Buckets: prometheus.DefBuckets,
	})

	routeSnapFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_route_snap_fallback_total",
		Help: "Road-snapping attempts that fell back to the straight-line route.",
	})

	routeSnapStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_route_snap_stale_total",
		Help: "Road-snapping results discarded because a newer route superseded them.",
	})

	accountApplyFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_account_apply_fail_total",
		Help: "Failed attempts to push a resolution outcome to the account ledger.",
	})
)
