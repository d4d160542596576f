package grpcapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/psaab/iproute2/pkg/grammar"
	"github.com/psaab/iproute2/pkg/routetable"
	"github.com/psaab/iproute2/pkg/routing"
)

// Recorder observes every parse the service performs.
type Recorder interface {
	Record(source, input string, r *grammar.Route, err error)
}

// TableLister lists stored tables.
type TableLister interface {
	ListTables(ctx context.Context) ([]routetable.TableInfo, error)
}

// Config configures the gRPC server.
type Config struct {
	Parser   *grammar.Parser // nil = default options
	Tables   TableLister     // nil = ListTables is Unavailable
	Recorder Recorder        // may be nil
}

// Server implements RouteGrammarServer.
type Server struct {
	addr     string
	parser   *grammar.Parser
	tables   TableLister
	recorder Recorder
}

var _ RouteGrammarServer = (*Server)(nil)

// NewServer creates a new gRPC server.
func NewServer(addr string, cfg Config) *Server {
	s := &Server{addr: addr, parser: cfg.Parser, tables: cfg.Tables, recorder: cfg.Recorder}
	if s.parser == nil {
		s.parser = grammar.NewParser(grammar.Options{})
	}
	return s
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gRPC listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.UnaryInterceptor(logUnary))
	RegisterRouteGrammarServer(srv, s)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	srv.GracefulStop()
	return nil
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	slog.Debug("gRPC call", "method", info.FullMethod,
		"code", status.Code(err).String(), "duration", time.Since(start))
	return resp, err
}

func (s *Server) parse(line string) (*grammar.Route, error) {
	r, err := s.parser.ParseLine(line)
	if s.recorder != nil {
		s.recorder.Record("grpc", line, r, err)
	}
	if err != nil {
		return nil, parseStatus(err)
	}
	return r, nil
}

// parseStatus maps a parse failure to InvalidArgument carrying the error
// kind as a StringValue detail.
func parseStatus(err error) error {
	st := status.New(codes.InvalidArgument, err.Error())
	if withKind, derr := st.WithDetails(wrapperspb.String(grammar.ErrorKind(err))); derr == nil {
		st = withKind
	}
	return st.Err()
}

func (s *Server) Parse(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	r, err := s.parse(req.GetValue())
	if err != nil {
		return nil, err
	}
	out, err := structpb.NewStruct(map[string]any{
		"canonical": r.String(),
		"tree":      r.Map(),
		"remainder": toList(r.Remainder),
		"command":   toList(routing.Command(r)),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode route: %v", err)
	}
	return out, nil
}

func (s *Server) Canonicalize(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	r, err := s.parse(req.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(r.String()), nil
}

func (s *Server) ListTables(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if s.tables == nil {
		return nil, status.Error(codes.Unavailable, "table store not configured")
	}
	infos, err := s.tables.ListTables(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	items := make([]any, 0, len(infos))
	for _, t := range infos {
		items = append(items, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"routes":      float64(t.Routes),
		})
	}
	out, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode tables: %v", err)
	}
	return out, nil
}

func toList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
