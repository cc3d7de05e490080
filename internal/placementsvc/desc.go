package placementsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "geoplace.v1.PlacementService"

// Full method names.
const (
	MethodPlaceObject       = "/" + ServiceName + "/PlaceObject"
	MethodToECEF            = "/" + ServiceName + "/ToECEF"
	MethodLocalToGeographic = "/" + ServiceName + "/LocalToGeographic"
	MethodResolveAltitude   = "/" + ServiceName + "/ResolveAltitude"
)

// PlacementServiceServer is the server API for the placement service. Every
// message is a google.protobuf.Struct with snake_case keys.
type PlacementServiceServer interface {
	PlaceObject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToECEF(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LocalToGeographic(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveAltitude(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes PlacementService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlacementServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceObject", Handler: unaryHandler(MethodPlaceObject, PlacementServiceServer.PlaceObject)},
		{MethodName: "ToECEF", Handler: unaryHandler(MethodToECEF, PlacementServiceServer.ToECEF)},
		{MethodName: "LocalToGeographic", Handler: unaryHandler(MethodLocalToGeographic, PlacementServiceServer.LocalToGeographic)},
		{MethodName: "ResolveAltitude", Handler: unaryHandler(MethodResolveAltitude, PlacementServiceServer.ResolveAltitude)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "geoplace/v1/placement.proto",
}

// RegisterPlacementServiceServer registers srv on s.
func RegisterPlacementServiceServer(s grpc.ServiceRegistrar, srv PlacementServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(PlacementServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PlacementServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PlacementServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls PlacementService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PlaceObject(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPlaceObject, in, opts...)
}

func (c *Client) ToECEF(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodToECEF, in, opts...)
}

func (c *Client) LocalToGeographic(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodLocalToGeographic, in, opts...)
}

func (c *Client) ResolveAltitude(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodResolveAltitude, in, opts...)
}
