package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// EngineCollector bundles Prometheus metrics for the game service: RPC
// traffic, order intake, turn resolution and per-game galaxy gauges.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	OrdersAccepted *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec

	TurnsResolved   prometheus.Counter
	TurnFailures    *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	PhaseDurations  *prometheus.HistogramVec
	CombatSites     prometheus.Counter
	ShipsDestroyed  prometheus.Counter
	ShipsBuilt      prometheus.Counter
	ResearchLevelUp prometheus.Counter

	GamesActive   prometheus.Gauge
	GalaxyFleets  *prometheus.GaugeVec
	GalaxyEmpires *prometheus.GaugeVec
	GameTurn      *prometheus.GaugeVec
}

// NewEngineCollector registers engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &EngineCollector{gatherer: gatherer}

	var err error
	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "rpc_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpc_request_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "rpc_request_duration_seconds"); err != nil {
		return nil, err
	}

	if c.OrdersAccepted, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_accepted_total",
		Help: "Orders accepted by intake, labeled by order kind.",
	}, []string{"kind"}), "orders_accepted_total"); err != nil {
		return nil, err
	}
	if c.OrdersRejected, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Orders rejected by intake, labeled by rejection code.",
	}, []string{"code"}), "orders_rejected_total"); err != nil {
		return nil, err
	}

	if c.TurnsResolved, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "turns_resolved_total",
		Help: "Turns committed across all games.",
	}), "turns_resolved_total"); err != nil {
		return nil, err
	}
	if c.TurnFailures, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_failures_total",
		Help: "Aborted turn resolutions, labeled by reason (invariant, canceled, panic, error).",
	}, []string{"reason"}), "turn_failures_total"); err != nil {
		return nil, err
	}
	if c.TurnDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "turn_resolution_duration_seconds",
		Help:    "Wall time spent resolving a committed turn.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "turn_resolution_duration_seconds"); err != nil {
		return nil, err
	}
	if c.PhaseDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "turn_phase_duration_seconds",
		Help:    "Duration of each resolution phase.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"phase"}), "turn_phase_duration_seconds"); err != nil {
		return nil, err
	}
	if c.CombatSites, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "combat_sites_total",
		Help: "Battles fought in committed turns.",
	}), "combat_sites_total"); err != nil {
		return nil, err
	}
	if c.ShipsDestroyed, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ships_destroyed_total",
		Help: "Ships destroyed in committed turns.",
	}), "ships_destroyed_total"); err != nil {
		return nil, err
	}
	if c.ShipsBuilt, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ships_built_total",
		Help: "Ships completed by production in committed turns.",
	}), "ships_built_total"); err != nil {
		return nil, err
	}
	if c.ResearchLevelUp, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "research_level_ups_total",
		Help: "Tech levels gained in committed turns.",
	}), "research_level_ups_total"); err != nil {
		return nil, err
	}

	if c.GamesActive, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "games_active",
		Help: "Current number of games hosted by the service.",
	}), "games_active"); err != nil {
		return nil, err
	}
	if c.GalaxyFleets, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "galaxy_fleets",
		Help: "Fleets in the committed galaxy of each game.",
	}, []string{"game"}), "galaxy_fleets"); err != nil {
		return nil, err
	}
	if c.GalaxyEmpires, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "galaxy_active_empires",
		Help: "Active (undefeated) empires in each game.",
	}, []string{"game"}), "galaxy_active_empires"); err != nil {
		return nil, err
	}
	if c.GameTurn, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "game_turn",
		Help: "Turn currently accepting orders in each game.",
	}, []string{"game"}), "game_turn"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *EngineCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds c to reg, reusing an already registered collector of the
// same type so several components can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, vec, name)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, vec, name)
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	return register(reg, vec, name)
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, gauge, name)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, hist, name)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, counter, name)
}
