// Package admin exposes a gRPC API for operators to inspect and create rooms.
// Room snapshots never include the current symbol.
package admin

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cory-johannsen/mimic/internal/game/room"
)

// RoomService is the room access the admin API needs.
type RoomService interface {
	Room(ctx context.Context, id string) (*room.Room, error)
	Rooms(ctx context.Context) ([]*room.Room, error)
	CreateRoom(ctx context.Context) (*room.Room, error)
}

// Service implements RoomAdminServer.
type Service struct {
	rooms  RoomService
	logger *zap.Logger
}

// NewService creates a Service.
//
// Precondition: rooms and logger must be non-nil.
func NewService(rooms RoomService, logger *zap.Logger) *Service {
	return &Service{rooms: rooms, logger: logger}
}

// GetRoom returns the snapshot of one room.
func (s *Service) GetRoom(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := in.GetValue()
	if !room.ValidID(id) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid room id %q", id)
	}
	r, err := s.rooms.Room(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return Snapshot(r)
}

// ListRooms returns every room, oldest first.
func (s *Service) ListRooms(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	rooms, err := s.rooms.Rooms(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(rooms))}
	for _, r := range rooms {
		snap, err := Snapshot(r)
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, structpb.NewStructValue(snap))
	}
	return out, nil
}

// CreateRoom creates an empty room with default settings.
func (s *Service) CreateRoom(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	r, err := s.rooms.CreateRoom(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return Snapshot(r)
}

// Snapshot converts r to its admin representation.
func Snapshot(r *room.Room) (*structpb.Struct, error) {
	participants := make([]any, len(r.Participants))
	for i, p := range r.Participants {
		participants[i] = p
	}
	snap, err := structpb.NewStruct(map[string]any{
		"room_id":      r.ID,
		"participants": participants,
		"game_state":   string(r.GameState),
		"current_turn": r.CurrentTurn,
		"timer":        r.Timer,
		"rounds":       r.Rounds,
		"created_at":   r.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding room %s: %v", r.ID, err)
	}
	return snap, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// NewServer builds a gRPC server carrying the admin service and the
// standard health service.
//
// Postcondition: Health reports SERVING for ServiceName and the overall server.
func NewServer(svc RoomAdminServer, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	RegisterRoomAdminServer(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// loggingInterceptor logs one line per call: failures at Warn, the rest at Debug.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("admin call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("admin call", fields...)
		}
		return resp, err
	}
}
