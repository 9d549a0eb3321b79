package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/stellar-empires/core"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
	"github.com/signalsfoundry/stellar-empires/model"
)

func newTestCollector(t *testing.T) (*EngineCollector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	return collector, reg
}

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	collector, reg := newTestCollector(t)

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/stellarempires.v1.GameService/GenerateTurn"}

	_, err := interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("GameService", "GenerateTurn", "OK")); got != 1 {
		t.Fatalf("rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "rpc_request_duration_seconds", map[string]string{
		"service": "GameService",
		"method":  "GenerateTurn",
	}); count != 1 {
		t.Fatalf("rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	collector, _ := newTestCollector(t)

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/stellarempires.v1.GameService/SubmitOrder"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("GameService", "SubmitOrder", "InvalidArgument")); got != 1 {
		t.Fatalf("rpc_requests_total error label = %v, want 1", got)
	}
}

func TestRecorderCountsOrdersAndTurns(t *testing.T) {
	collector, reg := newTestCollector(t)

	collector.OrderAccepted("waypoints")
	collector.OrderAccepted("waypoints")
	collector.OrderRejected("stale_turn")
	collector.TurnFailed("invariant")
	collector.PhaseDuration("combat", 3*time.Millisecond)

	res := &turn.Result{
		GameID:   "g1",
		Turn:     4,
		Duration: 20 * time.Millisecond,
		Report: &core.TurnReport{
			Combat: core.CombatResult{Events: []model.CombatEvent{
				{Losses: []model.ShipLoss{{Design: "Raider", Count: 2}, {Design: "Warden", Count: 1}}},
			}},
			Production: core.ProductionResult{Stars: []core.StarProduction{{Built: 2}, {Built: 1}}},
			Research:   core.ResearchResult{LevelUps: []core.LevelUp{{Empire: "blue", Field: model.TechWeapons, Level: 1}}},
		},
	}
	collector.TurnResolved(res)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"orders_accepted_total{waypoints}", testutil.ToFloat64(collector.OrdersAccepted.WithLabelValues("waypoints")), 2},
		{"orders_rejected_total{stale_turn}", testutil.ToFloat64(collector.OrdersRejected.WithLabelValues("stale_turn")), 1},
		{"turn_failures_total{invariant}", testutil.ToFloat64(collector.TurnFailures.WithLabelValues("invariant")), 1},
		{"turns_resolved_total", testutil.ToFloat64(collector.TurnsResolved), 1},
		{"combat_sites_total", testutil.ToFloat64(collector.CombatSites), 1},
		{"ships_destroyed_total", testutil.ToFloat64(collector.ShipsDestroyed), 3},
		{"ships_built_total", testutil.ToFloat64(collector.ShipsBuilt), 3},
		{"research_level_ups_total", testutil.ToFloat64(collector.ResearchLevelUp), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if count := histogramSampleCount(t, reg, "turn_phase_duration_seconds", map[string]string{"phase": "combat"}); count != 1 {
		t.Fatalf("turn_phase_duration_seconds{combat} sample_count = %d, want 1", count)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *EngineCollector
	c.OrderAccepted("research")
	c.OrderRejected("invalid_order")
	c.TurnResolved(&turn.Result{})
	c.TurnFailed("panic")
	c.PhaseDuration("movement", time.Millisecond)
	c.SetGames(3)
	c.ForgetGame("g")
	if c.Gatherer() != nil {
		t.Fatalf("nil collector returned a gatherer")
	}
}

func TestCollectorsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("first NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}
	first.OrderAccepted("tactic")
	if got := testutil.ToFloat64(second.OrdersAccepted.WithLabelValues("tactic")); got != 1 {
		t.Fatalf("second collector sees %v, want shared counter at 1", got)
	}
}

func TestMetricsHandlerExposesGameGauges(t *testing.T) {
	collector, _ := newTestCollector(t)
	collector.SetGames(2)
	collector.GalaxyFleets.WithLabelValues("g1").Set(7)
	collector.GameTurn.WithLabelValues("g1").Set(5)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"rpc_requests_total",
		"rpc_request_duration_seconds",
		"games_active 2",
		`galaxy_fleets{game="g1"} 7`,
		`game_turn{game="g1"} 5`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}

	collector.ForgetGame("g1")
	rr = httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)
	if strings.Contains(rr.Body.String(), `game="g1"`) {
		t.Fatalf("forgotten game still exported")
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in, service, method string
	}{
		{"/stellarempires.v1.GameService/SubmitOrder", "GameService", "SubmitOrder"},
		{"GameService/QueryState", "GameService", "QueryState"},
		{"", "unknown", "unknown"},
		{"/justone", "unknown", "unknown"},
	}
	for _, tc := range cases {
		s, m := SplitMethod(tc.in)
		if s != tc.service || m != tc.method {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", tc.in, s, m, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
