// Package grpcapi implements the RouteGrammar gRPC service. Messages are
// protobuf well-known types, so no generated code is needed.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "routegrammar.v1.RouteGrammar"

// Full method names.
const (
	ParseMethod        = "/" + serviceName + "/Parse"
	CanonicalizeMethod = "/" + serviceName + "/Canonicalize"
	ListTablesMethod   = "/" + serviceName + "/ListTables"
)

// RouteGrammarServer is the server API for the RouteGrammar service.
type RouteGrammarServer interface {
	// Parse returns {canonical, tree, remainder, command} for one route line.
	Parse(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Canonicalize returns the canonical text of one route line.
	Canonicalize(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	// ListTables returns one {name, description, routes} struct per table.
	ListTables(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// RegisterRouteGrammarServer registers srv on s.
func RegisterRouteGrammarServer(s grpc.ServiceRegistrar, srv RouteGrammarServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the RouteGrammar service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RouteGrammarServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Parse", Handler: parseHandler},
		{MethodName: "Canonicalize", Handler: canonicalizeHandler},
		{MethodName: "ListTables", Handler: listTablesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "routegrammar/v1/routegrammar.proto",
}

func parseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouteGrammarServer).Parse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ParseMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RouteGrammarServer).Parse(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func canonicalizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouteGrammarServer).Canonicalize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CanonicalizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RouteGrammarServer).Canonicalize(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listTablesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RouteGrammarServer).ListTables(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListTablesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RouteGrammarServer).ListTables(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
