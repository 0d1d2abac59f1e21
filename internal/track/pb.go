package track

import "google.golang.org/grpc"

// TruckReport is a streaming truck position update.
type TruckReport struct {
	ClientId string
	Lat      float64
	Lng      float64
	Ts       int64
}

// Ack is returned when the stream closes.
type Ack struct{}

// TrackServer defines the gRPC contract.
type TrackServer interface {
	StreamPosition(Track_StreamPositionServer) error
}

// RegisterTrackServer registers the service implementation.
func RegisterTrackServer(s *grpc.Server, srv TrackServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "track.Track",
		HandlerType: (*TrackServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "StreamPosition",
			Handler:       _Track_StreamPosition_Handler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, srv)
}

// Track_StreamPositionServer defines the bidi stream interface.
type Track_StreamPositionServer interface {
	grpc.ServerStream
	SendAndClose(*Ack) error
	Recv() (*TruckReport, error)
}

func _Track_StreamPosition_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(TrackServer).StreamPosition(&trackStreamServer{ServerStream: stream})
}

type trackStreamServer struct {
	grpc.ServerStream
}

func (s *trackStreamServer) SendAndClose(a *Ack) error { return s.ServerStream.SendMsg(a) }

func (s *trackStreamServer) Recv() (*TruckReport, error) {
	msg := new(TruckReport)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
