package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusPending.Terminal())
	require.True(t, StatusSuccess.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.False(t, RequestStatus("bogus").Terminal())
}

func TestAwardStandard(t *testing.T) {
	policy := AwardPolicy{StandardPoints: 10, BulkRate: 0.05}

	points, earnings := policy.Award(KindStandard, 0)
	require.Equal(t, 10, points)
	require.Zero(t, earnings)

	// Declared price is ignored for standard pickups.
	points, earnings = policy.Award(KindStandard, 9999)
	require.Equal(t, 10, points)
	require.Zero(t, earnings)
}

func TestAwardBulk(t *testing.T) {
	policy := AwardPolicy{StandardPoints: 10, BulkRate: 0.05}

	points, earnings := policy.Award(KindBulk, 4000)
	require.Equal(t, 200, points)
	require.EqualValues(t, 200, earnings)

	// Rounds to the nearest unit.
	points, earnings = policy.Award(KindBulk, 1010)
	require.Equal(t, 51, points)
	require.EqualValues(t, 51, earnings)

	points, earnings = policy.Award(KindBulk, 0)
	require.Zero(t, points)
	require.Zero(t, earnings)

	points, earnings = policy.Award(KindBulk, -500)
	require.Zero(t, points, "negative declared price must not produce a negative award")
	require.Zero(t, earnings)
}
