package gameapi

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/observability"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

func startGameServer(t *testing.T) (*GameServiceClient, *observability.EngineCollector) {
	t.Helper()
	collector, err := observability.NewEngineCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	catalog, err := kb.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	svc := NewService(WithCollector(collector))
	t.Cleanup(svc.Close)

	lis := bufconn.Listen(1 << 20)
	server := NewGRPCServer(logging.Noop(), collector)
	RegisterGameServiceServer(server, NewGameServer(svc, config.DefaultRules(), catalog))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewGameServiceClient(conn), collector
}

func TestGameServiceOverGRPC(t *testing.T) {
	client, collector := startGameServer(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-1", "x-game-id", "wire")

	created, err := client.CreateGame(ctx, &CreateGameRequest{GameID: "wire", Scenario: apiScenario})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if created.GameID != "wire" || created.Turn != 1 {
		t.Fatalf("CreateGame = %+v", created)
	}

	body, err := json.Marshal(model.WaypointOrder{Fleet: 1, Waypoints: []model.WaypointSpec{{Target: model.Vec2{X: 3, Y: 4}}}})
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	receipt, err := client.SubmitOrder(ctx, &SubmitOrderRequest{GameID: "wire", Empire: "blue", Turn: 1, Kind: "waypoints", Order: body})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if receipt.Turn != 1 || receipt.Pending != 1 || receipt.Subject == "" {
		t.Fatalf("SubmitOrder = %+v", receipt)
	}

	generated, err := client.GenerateTurn(ctx, &GenerateTurnRequest{GameID: "wire"})
	if err != nil {
		t.Fatalf("GenerateTurn: %v", err)
	}
	if generated.ResolvedTurn != 1 || generated.Turn != 2 {
		t.Fatalf("GenerateTurn = %+v", generated)
	}

	state, err := client.QueryState(ctx, &QueryStateRequest{GameID: "wire", Empire: "blue"})
	if err != nil {
		t.Fatalf("QueryState: %v", err)
	}
	if state.View == nil || state.View.Turn != 2 || state.View.Empire != "blue" {
		t.Fatalf("QueryState view = %+v", state.View)
	}

	games, err := client.ListGames(ctx, &ListGamesRequest{})
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games.Games) != 1 || games.Games[0].ID != "wire" || games.Games[0].Turn != 2 {
		t.Fatalf("ListGames = %+v", games.Games)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("GameService", "GenerateTurn", codes.OK.String())); got != 1 {
		t.Fatalf("rpc_requests_total{GenerateTurn,OK} = %v, want 1", got)
	}
}

func TestGameServiceErrorCodes(t *testing.T) {
	client, collector := startGameServer(t)
	ctx := context.Background()

	if _, err := client.CreateGame(ctx, &CreateGameRequest{GameID: "codes", Scenario: apiScenario}); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"missing scenario", func() error {
			_, err := client.CreateGame(ctx, &CreateGameRequest{})
			return err
		}, codes.InvalidArgument},
		{"duplicate game", func() error {
			_, err := client.CreateGame(ctx, &CreateGameRequest{GameID: "codes", Scenario: apiScenario})
			return err
		}, codes.AlreadyExists},
		{"unknown game", func() error {
			_, err := client.QueryState(ctx, &QueryStateRequest{GameID: "nope", Empire: "blue"})
			return err
		}, codes.NotFound},
		{"unknown order kind", func() error {
			_, err := client.SubmitOrder(ctx, &SubmitOrderRequest{GameID: "codes", Empire: "blue", Turn: 1, Kind: "teleport", Order: json.RawMessage(`{}`)})
			return err
		}, codes.InvalidArgument},
		{"stale turn", func() error {
			_, err := client.SubmitOrder(ctx, &SubmitOrderRequest{GameID: "codes", Empire: "blue", Turn: 7, Kind: "tactic", Order: json.RawMessage(`{"Fleet":1,"Tactic":"strongest"}`)})
			return err
		}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(tt.call()); got != tt.want {
				t.Fatalf("code = %v, want %v", got, tt.want)
			}
		})
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("GameService", "QueryState", codes.NotFound.String())); got != 1 {
		t.Fatalf("rpc_requests_total{QueryState,NotFound} = %v, want 1", got)
	}
}

func TestGameServiceJoinsCallerTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		_ = tp.Shutdown(context.Background())
	})

	client, _ := startGameServer(t)
	ctx, caller := tp.Tracer("bot").Start(context.Background(), "bot.turn")
	if _, err := client.CreateGame(ctx, &CreateGameRequest{GameID: "traced", Scenario: apiScenario}); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	_, err := client.QueryState(ctx, &QueryStateRequest{GameID: "traced", Empire: "green"})
	if err == nil {
		t.Fatal("QueryState for an unknown empire succeeded")
	}
	caller.End()

	traceID := caller.SpanContext().TraceID()
	find := func(name string) sdktrace.ReadOnlySpan {
		for i := 0; i < 200; i++ {
			for _, s := range recorder.Ended() {
				if s.Name() == name && s.SpanKind() == trace.SpanKindServer {
					return s
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("no server span %q recorded", name)
		return nil
	}

	created := find("GameService/CreateGame")
	if created.SpanContext().TraceID() != traceID {
		t.Fatalf("server span trace = %s, want caller trace %s", created.SpanContext().TraceID(), traceID)
	}
	if !hasAttr(created.Attributes(), attribute.String("game_id", "traced")) {
		t.Fatalf("CreateGame span attributes = %v, want game_id=traced", created.Attributes())
	}

	queried := find("GameService/QueryState")
	if !hasAttr(queried.Attributes(), attribute.String("empire", "green")) {
		t.Fatalf("QueryState span attributes = %v, want empire=green", queried.Attributes())
	}
	rejected := false
	for _, ev := range queried.Events() {
		if ev.Name == "request rejected" {
			rejected = true
		}
	}
	if !rejected {
		t.Fatalf("QueryState span events = %v, want a rejection event", queried.Events())
	}
}

func hasAttr(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, kv := range attrs {
		if kv.Key == want.Key && kv.Value.Emit() == want.Value.Emit() {
			return true
		}
	}
	return false
}
