package gameapi

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/observability"
)

const tracerName = "github.com/signalsfoundry/stellar-empires/internal/gameapi"

// Requests addressing one game or empire expose it to the span interceptor.
type (
	gameScoped   interface{ gameID() string }
	empireScoped interface{ empireID() string }
)

func (r *CreateGameRequest) gameID() string   { return r.GameID }
func (r *SubmitOrderRequest) gameID() string  { return r.GameID }
func (r *MarkReadyRequest) gameID() string    { return r.GameID }
func (r *GenerateTurnRequest) gameID() string { return r.GameID }
func (r *QueryStateRequest) gameID() string   { return r.GameID }

func (r *SubmitOrderRequest) empireID() string { return r.Empire }
func (r *MarkReadyRequest) empireID() string   { return r.Empire }
func (r *QueryStateRequest) empireID() string  { return r.Empire }

// GameSpanUnaryServerInterceptor names the RPC server span after the game
// operation and tags it with the game, empire and order it concerns. The
// span normally comes from the otelgrpc stats handler; servers built without
// it get one started here.
//
// Rejections a player can fix (bad orders, stale turns, unknown games) are
// recorded as span events; only server-side failures mark the span as errored.
func GameSpanUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := service + "/" + method

		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(name)
		}
		span.SetAttributes(requestAttributes(ctx, req)...)

		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		st := status.Convert(err)
		switch st.Code() {
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, st.Message())
		default:
			span.AddEvent("request rejected", trace.WithAttributes(
				attribute.String("code", st.Code().String()),
				attribute.String("reason", st.Message()),
			))
		}
		return resp, err
	}
}

func requestAttributes(ctx context.Context, req any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	game := logging.GameIDFromContext(ctx)
	if g, ok := req.(gameScoped); ok && g.gameID() != "" {
		game = g.gameID()
	}
	if game != "" {
		attrs = append(attrs, attribute.String("game_id", game))
	}
	if e, ok := req.(empireScoped); ok && e.empireID() != "" {
		attrs = append(attrs, attribute.String("empire", e.empireID()))
	}
	if o, ok := req.(*SubmitOrderRequest); ok {
		attrs = append(attrs,
			attribute.String("order.kind", o.Kind),
			attribute.Int("order.turn", o.Turn),
		)
	}
	if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
		attrs = append(attrs, attribute.String("request_id", reqID))
	}
	return attrs
}

// StartChildSpan starts a span for a service operation on one game.
func StartChildSpan(ctx context.Context, name, gameID string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	attrs := make([]attribute.KeyValue, 0, len(extra)+1)
	if gameID != "" {
		attrs = append(attrs, attribute.String("game_id", gameID))
	}
	attrs = append(attrs, extra...)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
