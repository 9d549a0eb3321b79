package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/stellar-empires/internal/admin"
	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/gameapi"
	"github.com/signalsfoundry/stellar-empires/internal/journal"
	"github.com/signalsfoundry/stellar-empires/internal/ledger"
	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/observability"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
	"github.com/signalsfoundry/stellar-empires/kb"
)

func main() {
	_ = godotenv.Load()

	cfg := config.ServerConfigFromEnv()
	flag.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "TCP address the game gRPC server listens on")
	flag.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "HTTP address for /metrics, /healthz and /debug")
	flag.StringVar(&cfg.RulesPath, "rules", cfg.RulesPath, "YAML rules file; stock rules when empty")
	flag.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "YAML design catalog; bundled catalog when empty")
	flag.StringVar(&cfg.ScenarioPath, "scenario", cfg.ScenarioPath, "YAML scenario hosted at startup")
	flag.StringVar(&cfg.JournalDir, "journal-dir", cfg.JournalDir, "directory for the turn journal; disabled when empty")
	flag.StringVar(&cfg.JournalCodec, "journal-codec", cfg.JournalCodec, "journal compression: zstd or lz4")
	flag.StringVar(&cfg.LedgerPath, "ledger", cfg.LedgerPath, "SQLite ledger path; disabled when empty")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, log)
	stop()
	os.Exit(code)
}

// run serves until ctx is done and returns the process exit code. Deferred
// cleanup (ledger, tracing flush) completes before it returns.
func run(ctx context.Context, cfg config.ServerConfig, log logging.Logger) int {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return 1
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	a, err := buildApp(ctx, cfg, prometheus.NewRegistry(), log)
	if err != nil {
		log.Error(ctx, "failed to start", logging.Err(err))
		return 1
	}
	defer a.close()

	if err := a.serve(ctx); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		return 1
	}
	return 0
}

type app struct {
	cfg     config.ServerConfig
	log     logging.Logger
	rules   config.Rules
	catalog *kb.DesignCatalog

	collector *observability.EngineCollector
	svc       *gameapi.Service
	ledger    *ledger.SQLiteLedger

	grpc   *grpc.Server
	health *health.Server
	admin  *http.Server
}

func buildApp(ctx context.Context, cfg config.ServerConfig, reg *prometheus.Registry, log logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, rules: config.DefaultRules()}

	var err error
	if cfg.RulesPath != "" {
		if a.rules, err = config.LoadRules(cfg.RulesPath); err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
	}
	if cfg.CatalogPath != "" {
		a.catalog, err = kb.LoadCatalogFile(cfg.CatalogPath)
	} else {
		a.catalog, err = kb.DefaultCatalog()
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if a.collector, err = observability.NewEngineCollector(reg); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	var sinks []turn.CommitSink
	if cfg.JournalDir != "" {
		codec, err := journal.CodecByName(cfg.JournalCodec)
		if err != nil {
			return nil, err
		}
		store, err := journal.NewFileStore(cfg.JournalDir, codec)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		sinks = append(sinks, journal.New(store, log))
		log.Info(ctx, "turn journal enabled", logging.String("dir", cfg.JournalDir), logging.String("codec", codec.Name()))
	}
	if cfg.LedgerPath != "" {
		if a.ledger, err = ledger.OpenSQLite(cfg.LedgerPath, log); err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
		sinks = append(sinks, a.ledger)
		log.Info(ctx, "turn ledger enabled", logging.String("path", cfg.LedgerPath))
	}

	a.svc = gameapi.NewService(
		gameapi.WithLogger(log),
		gameapi.WithCollector(a.collector),
		gameapi.WithCommitSinks(sinks...),
	)

	if cfg.ScenarioPath != "" {
		galaxy, err := state.LoadScenarioFile(cfg.ScenarioPath, a.catalog)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("load scenario: %w", err)
		}
		id, err := a.svc.CreateGame(ctx, gameapi.GameSpec{Galaxy: galaxy, Rules: a.rules, Catalog: a.catalog})
		if err != nil {
			a.close()
			return nil, err
		}
		log.Info(ctx, "hosting scenario", logging.String("path", cfg.ScenarioPath), logging.GameID(id))
	}

	a.grpc = gameapi.NewGRPCServer(log, a.collector)
	gameapi.RegisterGameServiceServer(a.grpc, gameapi.NewGameServer(a.svc, a.rules, a.catalog))
	a.health = health.NewServer()
	healthpb.RegisterHealthServer(a.grpc, a.health)
	a.health.SetServingStatus(gameapi.ServiceName, healthpb.HealthCheckResponse_SERVING)

	var lr admin.LedgerReader
	if a.ledger != nil {
		lr = a.ledger
	}
	a.admin = &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           admin.NewRouter(a.svc, a.collector.Handler(), lr, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// serve runs the gRPC and admin servers until ctx ends or one of them fails.
func (a *app) serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.GRPCAddr, err)
	}
	return a.serveOn(ctx, lis)
}

func (a *app) serveOn(ctx context.Context, lis net.Listener) error {
	errc := make(chan error, 2)
	go func() {
		a.log.Info(ctx, "starting game gRPC server", logging.String("addr", lis.Addr().String()))
		errc <- a.grpc.Serve(lis)
	}()
	if a.cfg.AdminAddr != "" {
		go func() {
			a.log.Info(ctx, "serving admin HTTP", logging.String("addr", a.cfg.AdminAddr))
			if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	a.log.Info(context.Background(), "shutting down")
	a.health.Shutdown()
	a.grpc.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.admin.Shutdown(shutdownCtx)
	return err
}

func (a *app) close() {
	if a.svc != nil {
		a.svc.Close()
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn(context.Background(), "ledger close failed", logging.Err(err))
		}
	}
}
