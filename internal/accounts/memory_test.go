package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestApplyOutcomeAccrues(t *testing.T) {
	l := NewMemoryLedger()
	owner := uuid.New()
	ctx := context.Background()

	require.NoError(t, l.ApplyOutcome(ctx, &owner, "req-1", 10, 0))
	require.NoError(t, l.ApplyOutcome(ctx, &owner, "req-2", 200, 200))

	points, earnings := l.Totals(owner)
	require.Equal(t, 210, points)
	require.EqualValues(t, 200, earnings)
}

func TestApplyOutcomeIdempotent(t *testing.T) {
	l := NewMemoryLedger()
	owner := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.ApplyOutcome(ctx, &owner, "req-1", 10, 5))
	}

	points, earnings := l.Totals(owner)
	require.Equal(t, 10, points)
	require.EqualValues(t, 5, earnings)
}

func TestApplyOutcomeAnonymous(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.ApplyOutcome(ctx, nil, "req-1", 10, 0))

	owner := uuid.New()
	// Same request id cannot be re-applied even with an owner attached.
	require.NoError(t, l.ApplyOutcome(ctx, &owner, "req-1", 10, 0))
	points, _ := l.Totals(owner)
	require.Zero(t, points)
}
