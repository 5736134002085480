package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mimic.admin.v1.RoomAdmin"

const (
	methodGetRoom    = "/" + ServiceName + "/GetRoom"
	methodListRooms  = "/" + ServiceName + "/ListRooms"
	methodCreateRoom = "/" + ServiceName + "/CreateRoom"
)

// RoomAdminServer is the server side of the room admin API. Messages are
// well-known protobuf types so no generated code is needed.
type RoomAdminServer interface {
	GetRoom(ctx context.Context, id *wrapperspb.StringValue) (*structpb.Struct, error)
	ListRooms(ctx context.Context, in *emptypb.Empty) (*structpb.ListValue, error)
	CreateRoom(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterRoomAdminServer registers srv on s.
func RegisterRoomAdminServer(s grpc.ServiceRegistrar, srv RoomAdminServer) {
	s.RegisterService(&roomAdminServiceDesc, srv)
}

var roomAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetRoom", Handler: getRoomHandler},
		{MethodName: "ListRooms", Handler: listRoomsHandler},
		{MethodName: "CreateRoom", Handler: createRoomHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mimic/admin/v1/admin.proto",
}

func getRoomHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).GetRoom(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetRoom}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).GetRoom(ctx, req.(*wrapperspb.StringValue))
	})
}

func listRoomsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).ListRooms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListRooms}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).ListRooms(ctx, req.(*emptypb.Empty))
	})
}

func createRoomHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).CreateRoom(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCreateRoom}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).CreateRoom(ctx, req.(*emptypb.Empty))
	})
}

// Client calls the room admin API over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// GetRoom fetches one room snapshot.
func (c *Client) GetRoom(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodGetRoom, wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRooms fetches every room snapshot.
func (c *Client) ListRooms(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, methodListRooms, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRoom creates an empty room.
func (c *Client) CreateRoom(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodCreateRoom, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
