package track

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/example/haulite/internal/dispatch/domain"
)

type recordedReport struct {
	origin string
	point  domain.GeoPoint
}

type fakeSink struct {
	reports []recordedReport
}

func (f *fakeSink) ReportPosition(_ context.Context, origin string, p domain.GeoPoint) []domain.PickupRequest {
	f.reports = append(f.reports, recordedReport{origin: origin, point: p})
	return nil
}

type fakeStream struct {
	grpc.ServerStream
	reports []*TruckReport
	idx     int
	closed  bool
}

func (f *fakeStream) Context() context.Context { return context.Background() }

func (f *fakeStream) Recv() (*TruckReport, error) {
	if f.idx >= len(f.reports) {
		return nil, io.EOF
	}
	msg := f.reports[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeStream) SendAndClose(*Ack) error {
	f.closed = true
	return nil
}

func TestStreamPositionForwardsReports(t *testing.T) {
	sink := &fakeSink{}
	stream := &fakeStream{reports: []*TruckReport{
		{ClientId: "truck-1", Lat: 9.30, Lng: 123.30},
		{ClientId: "truck-1", Lat: 9.31, Lng: 123.31},
	}}

	err := NewServer(sink).StreamPosition(stream)
	require.NoError(t, err)
	require.True(t, stream.closed)
	require.Len(t, sink.reports, 2)
	require.Equal(t, "truck-1", sink.reports[0].origin)
	require.Equal(t, domain.GeoPoint{Lat: 9.31, Lng: 123.31}, sink.reports[1].point)
}

func TestStreamPositionEmptyStream(t *testing.T) {
	sink := &fakeSink{}
	stream := &fakeStream{}

	err := NewServer(sink).StreamPosition(stream)
	require.NoError(t, err)
	require.True(t, stream.closed)
	require.Empty(t, sink.reports)
}
