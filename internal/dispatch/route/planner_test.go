package route

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/haulite/internal/dispatch/domain"
)

func TestPlanClosesLoopAtDumpsite(t *testing.T) {
	dumpsite := domain.GeoPoint{Lat: 9.30, Lng: 123.30}
	stops := []Stop{
		{ID: "a", Location: domain.GeoPoint{Lat: 9.35, Lng: 123.31}},
		{ID: "b", Location: domain.GeoPoint{Lat: 9.28, Lng: 123.29}},
		{ID: "c", Location: domain.GeoPoint{Lat: 9.33, Lng: 123.33}},
	}

	points, err := Plan(dumpsite, stops)
	require.NoError(t, err)
	require.Len(t, points, len(stops)+2)
	require.Equal(t, dumpsite, points[0])
	require.Equal(t, dumpsite, points[len(points)-1])

	seen := map[domain.GeoPoint]bool{}
	for _, p := range points[1 : len(points)-1] {
		require.False(t, seen[p], "stop visited twice: %v", p)
		seen[p] = true
	}
	for _, s := range stops {
		require.True(t, seen[s.Location], "stop %s missing from route", s.ID)
	}
}

func TestPlanPicksNearestFirst(t *testing.T) {
	dumpsite := domain.GeoPoint{Lat: 9.30, Lng: 123.30}
	near := domain.GeoPoint{Lat: 9.305, Lng: 123.30}
	far := domain.GeoPoint{Lat: 9.40, Lng: 123.40}

	points, err := Plan(dumpsite, []Stop{
		{ID: "far", Location: far},
		{ID: "near", Location: near},
	})
	require.NoError(t, err)
	require.Equal(t, near, points[1])
	require.Equal(t, far, points[2])
}

func TestPlanTieBreaksOnLowestID(t *testing.T) {
	dumpsite := domain.GeoPoint{Lat: 9.30, Lng: 123.30}
	north := domain.GeoPoint{Lat: 9.31, Lng: 123.30}
	south := domain.GeoPoint{Lat: 9.29, Lng: 123.30}

	points, err := Plan(dumpsite, []Stop{
		{ID: "b", Location: north},
		{ID: "a", Location: south},
	})
	require.NoError(t, err)
	require.Equal(t, south, points[1], "equidistant stops should visit lowest id first")
	require.Equal(t, north, points[2])
}

func TestPlanIsDeterministic(t *testing.T) {
	dumpsite := domain.GeoPoint{Lat: 9.30, Lng: 123.30}
	stops := []Stop{
		{ID: "a", Location: domain.GeoPoint{Lat: 9.36, Lng: 123.28}},
		{ID: "b", Location: domain.GeoPoint{Lat: 9.27, Lng: 123.35}},
		{ID: "c", Location: domain.GeoPoint{Lat: 9.32, Lng: 123.31}},
		{ID: "d", Location: domain.GeoPoint{Lat: 9.30, Lng: 123.26}},
	}

	first, err := Plan(dumpsite, stops)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Plan(dumpsite, stops)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestPlanDoesNotMutateInput(t *testing.T) {
	stops := []Stop{
		{ID: "a", Location: domain.GeoPoint{Lat: 9.36, Lng: 123.28}},
		{ID: "b", Location: domain.GeoPoint{Lat: 9.27, Lng: 123.35}},
	}
	original := make([]Stop, len(stops))
	copy(original, stops)

	_, err := Plan(domain.GeoPoint{Lat: 9.30, Lng: 123.30}, stops)
	require.NoError(t, err)
	require.Equal(t, original, stops)
}

func TestPlanNoStops(t *testing.T) {
	_, err := Plan(domain.GeoPoint{Lat: 9.30, Lng: 123.30}, nil)
	require.ErrorIs(t, err, domain.ErrNoPendingStops)
}
