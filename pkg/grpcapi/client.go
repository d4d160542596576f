package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the RouteGrammar service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Parse parses one route line remotely.
func (c *Client) Parse(ctx context.Context, line string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ParseMethod, wrapperspb.String(line), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Canonicalize returns the canonical text of one route line.
func (c *Client) Canonicalize(ctx context.Context, line string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, CanonicalizeMethod, wrapperspb.String(line), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// ListTables lists the stored tables.
func (c *Client) ListTables(ctx context.Context, opts ...grpc.CallOption) ([]map[string]any, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListTablesMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	tables := make([]map[string]any, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		if st := v.GetStructValue(); st != nil {
			tables = append(tables, st.AsMap())
		}
	}
	return tables, nil
}

// ErrorKind extracts the parse error kind from a Parse or Canonicalize
// failure, or "" if err carries none.
func ErrorKind(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if sv, ok := d.(*wrapperspb.StringValue); ok {
			return sv.GetValue()
		}
	}
	return ""
}
