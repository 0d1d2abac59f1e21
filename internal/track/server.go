package track

import (
	"context"
	"io"

	"github.com/example/haulite/internal/dispatch/domain"
)

// PositionSink accepts streamed truck positions.
type PositionSink interface {
	ReportPosition(ctx context.Context, origin string, p domain.GeoPoint) []domain.PickupRequest
}

// Server implements the TrackServer interface.
type Server struct {
	sink PositionSink
}

// NewServer constructs a server.
func NewServer(sink PositionSink) *Server {
	return &Server{sink: sink}
}

// StreamPosition ingests truck reports and forwards them to the dispatcher.
func (s *Server) StreamPosition(stream Track_StreamPositionServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		s.sink.ReportPosition(stream.Context(), msg.ClientId, domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng})
	}
}
