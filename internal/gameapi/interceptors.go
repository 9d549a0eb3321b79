package gameapi

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/observability"
)

const (
	requestIDMetadataKey = "x-request-id"
	gameIDMetadataKey    = "x-game-id"
)

// RequestIDUnaryServerInterceptor ensures a request_id is present on the
// context, sourcing it from inbound metadata if provided, and attaches a
// per-request logger annotated with request_id, game_id and method.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if incoming := firstHeader(md, requestIDMetadataKey); incoming != "" {
				ctx = logging.ContextWithRequestID(ctx, incoming)
			}
			if game := firstHeader(md, gameIDMetadataKey); game != "" {
				ctx = logging.ContextWithGameID(ctx, game)
			}
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		return handler(ctx, req)
	}
}

// StatusUnaryServerInterceptor converts engine errors returned by handlers
// into gRPC status errors.
func StatusUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		return resp, ToStatusError(err)
	}
}

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// loggerFor prefers the request-scoped logger placed by the interceptor.
func loggerFor(ctx context.Context, fallback logging.Logger) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return fallback
}

// NewGRPCServer builds a server that continues the caller's trace through
// the otelgrpc stats handler and runs the standard interceptor chain:
// request scoping, span tagging, metrics and finally status mapping, so the
// metrics and spans see the mapped codes.
func NewGRPCServer(log logging.Logger, collector *observability.EngineCollector, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			GameSpanUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
			StatusUnaryServerInterceptor(),
		),
	}
	return grpc.NewServer(append(base, opts...)...)
}
