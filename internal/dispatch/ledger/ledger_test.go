package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/haulite/internal/dispatch/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestLedger() *Ledger {
	return New(fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)})
}

func TestUpsertCreatesPending(t *testing.T) {
	l := newTestLedger()
	owner := uuid.New()

	req, applied := l.Upsert("client-1", &owner, domain.GeoPoint{Lat: 9.3, Lng: 123.3}, domain.KindStandard, 0)
	require.True(t, applied)
	require.Equal(t, domain.StatusPending, req.Status)
	require.Equal(t, &owner, req.OwnerID)
	require.False(t, req.RequestedAt.IsZero())
}

func TestUpsertDefaultsKind(t *testing.T) {
	l := newTestLedger()
	req, applied := l.Upsert("client-1", nil, domain.GeoPoint{}, "", 0)
	require.True(t, applied)
	require.Equal(t, domain.KindStandard, req.Kind)
}

func TestUpsertMovesPendingPin(t *testing.T) {
	l := newTestLedger()
	l.Upsert("client-1", nil, domain.GeoPoint{Lat: 9.3, Lng: 123.3}, domain.KindStandard, 0)

	moved := domain.GeoPoint{Lat: 9.4, Lng: 123.4}
	req, applied := l.Upsert("client-1", nil, moved, domain.KindBulk, 5000)
	require.True(t, applied)
	require.Equal(t, moved, req.Location)
	require.Equal(t, domain.KindBulk, req.Kind)
	require.EqualValues(t, 5000, req.DeclaredPrice)

	require.Len(t, l.All(), 1)
}

func TestUpsertEmptyKindKeepsExisting(t *testing.T) {
	l := newTestLedger()
	l.Upsert("client-1", nil, domain.GeoPoint{Lat: 9.3, Lng: 123.3}, domain.KindBulk, 5000)

	req, applied := l.Upsert("client-1", nil, domain.GeoPoint{Lat: 9.4, Lng: 123.4}, "", 5000)
	require.True(t, applied)
	require.Equal(t, domain.KindBulk, req.Kind, "moving a pin without a kind must not reset it")
}

func TestUpsertAfterResolutionIsRejected(t *testing.T) {
	l := newTestLedger()
	l.Upsert("client-1", nil, domain.GeoPoint{Lat: 9.3, Lng: 123.3}, domain.KindStandard, 0)
	_, err := l.Resolve("client-1", domain.StatusSuccess, 10, 0)
	require.NoError(t, err)

	req, applied := l.Upsert("client-1", nil, domain.GeoPoint{Lat: 9.9, Lng: 123.9}, domain.KindStandard, 0)
	require.False(t, applied)
	require.Equal(t, domain.StatusSuccess, req.Status)
	require.Equal(t, 9.3, req.Location.Lat, "terminal record must keep its original location")
}

func TestRemoveOnlyPending(t *testing.T) {
	l := newTestLedger()
	l.Upsert("pending", nil, domain.GeoPoint{}, domain.KindStandard, 0)
	l.Upsert("done", nil, domain.GeoPoint{}, domain.KindStandard, 0)
	_, err := l.Resolve("done", domain.StatusFailed, 0, 0)
	require.NoError(t, err)

	_, removed := l.Remove("pending")
	require.True(t, removed)

	_, removed = l.Remove("done")
	require.False(t, removed, "terminal record must survive owner disconnect")

	_, removed = l.Remove("missing")
	require.False(t, removed)

	require.Len(t, l.All(), 1)
}

func TestResolveSuccessAwards(t *testing.T) {
	l := newTestLedger()
	l.Upsert("client-1", nil, domain.GeoPoint{}, domain.KindBulk, 4000)

	req, err := l.Resolve("client-1", domain.StatusSuccess, 200, 200)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, req.Status)
	require.Equal(t, 200, req.PointsAwarded)
	require.EqualValues(t, 200, req.EarningsAwarded)
	require.NotNil(t, req.ResolvedAt)
}

func TestResolveFailedAwardsNothing(t *testing.T) {
	l := newTestLedger()
	l.Upsert("client-1", nil, domain.GeoPoint{}, domain.KindStandard, 0)

	req, err := l.Resolve("client-1", domain.StatusFailed, 10, 0)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, req.Status)
	require.Zero(t, req.PointsAwarded)
	require.Zero(t, req.EarningsAwarded)
}

func TestResolveTwiceRejected(t *testing.T) {
	l := newTestLedger()
	l.Upsert("client-1", nil, domain.GeoPoint{}, domain.KindStandard, 0)

	first, err := l.Resolve("client-1", domain.StatusSuccess, 10, 0)
	require.NoError(t, err)

	second, err := l.Resolve("client-1", domain.StatusSuccess, 10, 0)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	require.Equal(t, first.PointsAwarded, second.PointsAwarded, "award must not change on double resolve")
}

func TestResolveUnknown(t *testing.T) {
	l := newTestLedger()
	_, err := l.Resolve("nope", domain.StatusSuccess, 10, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPendingSortedAndFiltered(t *testing.T) {
	l := newTestLedger()
	l.Upsert("c", nil, domain.GeoPoint{}, domain.KindStandard, 0)
	l.Upsert("a", nil, domain.GeoPoint{}, domain.KindStandard, 0)
	l.Upsert("b", nil, domain.GeoPoint{}, domain.KindStandard, 0)
	_, err := l.Resolve("b", domain.StatusSuccess, 10, 0)
	require.NoError(t, err)

	pending := l.Pending()
	require.Len(t, pending, 2)
	require.Equal(t, "a", pending[0].ID)
	require.Equal(t, "c", pending[1].ID)

	all := l.All()
	require.Len(t, all, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestAccessorsCopyOut(t *testing.T) {
	l := newTestLedger()
	l.Upsert("client-1", nil, domain.GeoPoint{Lat: 1}, domain.KindStandard, 0)

	got, ok := l.Get("client-1")
	require.True(t, ok)
	got.Location.Lat = 99

	again, _ := l.Get("client-1")
	require.Equal(t, 1.0, again.Location.Lat, "mutating a returned copy must not touch stored state")
}
