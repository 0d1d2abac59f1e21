package route

import (
	"github.com/example/haulite/internal/dispatch/domain"
	"github.com/example/haulite/internal/geo"
)

// Stop pairs a pending request id with its location so the planner can break
// exact distance ties deterministically.
type Stop struct {
	ID       string
	Location domain.GeoPoint
}

// Plan orders stops with a greedy nearest-neighbor walk anchored at the
// dumpsite and closes the loop back to it.
//
// The walk minimizes immediate straight-line distance at each step. It makes
// no attempt at global optimization; determinism and simplicity win over
// optimality. On an exact distance tie the lowest request id is visited first.
//
// The stops slice is copied before planning, so a ledger mutating concurrently
// cannot corrupt an in-progress computation.
func Plan(dumpsite domain.GeoPoint, stops []Stop) ([]domain.GeoPoint, error) {
	if len(stops) == 0 {
		return nil, domain.ErrNoPendingStops
	}

	remaining := make([]Stop, len(stops))
	copy(remaining, stops)

	ordered := make([]domain.GeoPoint, 0, len(stops)+2)
	ordered = append(ordered, dumpsite)
	current := dumpsite

	for len(remaining) > 0 {
		best := 0
		bestDist := geo.Distance(current, remaining[0].Location)
		for i := 1; i < len(remaining); i++ {
			d := geo.Distance(current, remaining[i].Location)
			if d < bestDist || (d == bestDist && remaining[i].ID < remaining[best].ID) {
				best = i
				bestDist = d
			}
		}

		current = remaining[best].Location
		ordered = append(ordered, current)
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	ordered = append(ordered, dumpsite)
	return ordered, nil
}
