// Package turn orchestrates turn resolution for one game: it closes order
// intake, resolves every phase on a working copy of the committed galaxy and
// publishes the copy atomically when nothing went wrong.
package turn

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/stellar-empires/core"
	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/sim/intake"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

const tracerName = "github.com/signalsfoundry/stellar-empires/internal/sim/turn"

var _ core.World = (*state.Galaxy)(nil)

var (
	// ErrResolutionInProgress indicates another Resolve call holds the game.
	ErrResolutionInProgress = errors.New("turn resolution already in progress")
	// ErrResolutionFailed indicates the turn aborted; nothing was committed.
	ErrResolutionFailed = errors.New("turn resolution failed")
)

// InvasionPolicy decides star ownership changes after combat.
type InvasionPolicy = core.InvasionPolicy

// InvasionEvent records a star changing hands.
type InvasionEvent = core.InvasionEvent

// Status is the orchestrator's lifecycle state.
type Status int32

const (
	AwaitingOrders Status = iota
	Resolving
	Committed
)

func (s Status) String() string {
	switch s {
	case AwaitingOrders:
		return "awaiting_orders"
	case Resolving:
		return "resolving"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one committed turn.
type Result struct {
	GameID string
	// Turn is the number of the turn that was resolved.
	Turn int
	Seed uint64

	Orders  []model.Command
	Skipped []SkippedOrder
	Report  *core.TurnReport

	Prior       *state.Galaxy
	Galaxy      *state.Galaxy
	PriorDigest string
	Digest      string

	Duration time.Duration
}

// CommitSink is notified after every commit. Sink errors are logged; the
// turn stays committed.
type CommitSink interface {
	Commit(ctx context.Context, r *Result) error
}

// Recorder receives resolution metrics.
type Recorder interface {
	TurnResolved(r *Result)
	TurnFailed(reason string)
	PhaseDuration(phase string, d time.Duration)
}

// Option configures a Game.
type Option func(*Game)

// WithLogger sets the game logger.
func WithLogger(l logging.Logger) Option {
	return func(g *Game) {
		if l != nil {
			g.log = l
		}
	}
}

// WithCommitSinks registers sinks notified after each commit, in order.
func WithCommitSinks(sinks ...CommitSink) Option {
	return func(g *Game) { g.sinks = append(g.sinks, sinks...) }
}

// WithInvasionPolicy enables the post-combat invasion phase.
func WithInvasionPolicy(p InvasionPolicy) Option {
	return func(g *Game) { g.invasion = p }
}

// WithRecorder reports resolution metrics to r.
func WithRecorder(r Recorder) Option {
	return func(g *Game) { g.rec = r }
}

// WithHistory keeps per-turn summaries in h.
func WithHistory(h *state.TurnHistory) Option {
	return func(g *Game) { g.history = h }
}

// WithIntakeOptions forwards options to the game's order intake.
func WithIntakeOptions(opts ...intake.Option) Option {
	return func(g *Game) { g.intakeOpts = append(g.intakeOpts, opts...) }
}

// Game is a running game: the committed galaxy, its order intake and the
// single-writer resolution lock.
type Game struct {
	id      string
	rules   config.Rules
	catalog *kb.DesignCatalog

	committed atomic.Pointer[state.Galaxy]
	status    atomic.Int32
	resolving sync.Mutex

	intake     *intake.Intake
	intakeOpts []intake.Option
	sinks      []CommitSink
	invasion   InvasionPolicy
	rec        Recorder
	history    *state.TurnHistory
	tracer     trace.Tracer
	log        logging.Logger
}

// NewGame takes ownership of initial, which must satisfy the galaxy
// invariants, and opens intake for its current turn.
func NewGame(id string, initial *state.Galaxy, rules config.Rules, catalog *kb.DesignCatalog, opts ...Option) (*Game, error) {
	if initial == nil || catalog == nil {
		return nil, fmt.Errorf("new game %q: galaxy and catalog are required", id)
	}
	if err := initial.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("new game %q: %w", id, err)
	}
	if _, err := core.NewStatsTable(catalog, initial.Designs()); err != nil {
		return nil, fmt.Errorf("new game %q: %w", id, err)
	}
	g := &Game{
		id:      id,
		rules:   rules.ApplyDefaults(),
		catalog: catalog,
		tracer:  otel.Tracer(tracerName),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(logging.GameID(id))
	g.committed.Store(initial)
	g.intake = intake.New(g.rules, catalog, g.committed.Load, append([]intake.Option{intake.WithLogger(g.log)}, g.intakeOpts...)...)
	return g, nil
}

// ID returns the game id.
func (g *Game) ID() string { return g.id }

// Rules returns the game's rules.
func (g *Game) Rules() config.Rules { return g.rules }

// Catalog returns the game's design catalog.
func (g *Game) Catalog() *kb.DesignCatalog { return g.catalog }

// Committed returns the last committed galaxy. Callers must not mutate it.
func (g *Game) Committed() *state.Galaxy { return g.committed.Load() }

// Turn returns the number of the turn accepting orders.
func (g *Game) Turn() int { return g.committed.Load().Turn }

// Status returns the orchestrator state.
func (g *Game) Status() Status { return Status(g.status.Load()) }

// Intake exposes the order intake.
func (g *Game) Intake() *intake.Intake { return g.intake }

// History returns the turn history, or nil when none was configured.
func (g *Game) History() *state.TurnHistory { return g.history }

// Submit forwards a command to the intake.
func (g *Game) Submit(ctx context.Context, empire model.EmpireID, cmd model.Command) (intake.Receipt, error) {
	return g.intake.Submit(ctx, empire, cmd)
}

// View returns the committed galaxy as seen by empire.
func (g *Game) View(empire model.EmpireID) (*state.View, error) {
	return g.committed.Load().ViewFor(empire)
}

// Resolve resolves the current turn. Only one resolution runs at a time; a
// concurrent call returns ErrResolutionInProgress without side effects. On
// failure the committed galaxy and the buffered orders are unchanged.
// ctx is only consulted before resolution starts; once the intake closes the
// turn runs to completion and commits even if ctx is canceled meanwhile.
func (g *Game) Resolve(ctx context.Context) (*Result, error) {
	if !g.resolving.TryLock() {
		return nil, ErrResolutionInProgress
	}
	defer g.resolving.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	prior := g.committed.Load()
	ctx, span := g.tracer.Start(ctx, "turn.Resolve", trace.WithAttributes(
		attribute.String("game_id", g.id),
		attribute.Int("turn", prior.Turn),
	))
	defer span.End()

	g.status.Store(int32(Resolving))
	batch := g.intake.Close()
	start := time.Now()

	res, err := g.resolve(ctx, prior, batch)
	if err != nil {
		g.intake.Reopen(false)
		g.status.Store(int32(AwaitingOrders))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if g.rec != nil {
			g.rec.TurnFailed(failureReason(err))
		}
		g.log.Error(ctx, "turn resolution failed",
			logging.Turn(prior.Turn),
			logging.Int("orders", len(batch)),
			logging.Err(err),
		)
		return nil, err
	}
	res.Duration = time.Since(start)

	g.committed.Store(res.Galaxy)
	g.status.Store(int32(Committed))
	g.intake.Reopen(true)

	g.publish(ctx, res)
	g.status.Store(int32(AwaitingOrders))

	span.SetAttributes(attribute.String("digest", res.Digest))
	g.log.Info(ctx, "turn committed",
		logging.Turn(res.Turn),
		logging.Int("orders", len(res.Orders)),
		logging.Int("skipped", len(res.Skipped)),
		logging.Int("battles", len(res.Report.Combat.Events)),
		logging.String("digest", res.Digest),
		logging.Any("duration", res.Duration),
	)
	return res, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, state.ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, ErrResolutionFailed):
		return "panic"
	default:
		return "error"
	}
}

// resolve runs every phase on a clone of prior. Panics in resolver code are
// converted to errors so a bad turn never takes down the server.
func (g *Game) resolve(ctx context.Context, prior *state.Galaxy, batch []model.Command) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error(ctx, "panic during turn resolution",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			res, err = nil, fmt.Errorf("%w: panic: %v", ErrResolutionFailed, r)
		}
	}()

	priorDigest, err := prior.Digest()
	if err != nil {
		return nil, err
	}

	work := prior.Clone()
	turn := work.Turn
	seed := core.DeriveSeed(work.Seed, turn)

	skipped := ApplyOrders(work, batch)
	for _, s := range skipped {
		g.log.Warn(ctx, "accepted order no longer applies",
			logging.Empire(s.Command.Empire),
			logging.String("subject", s.Command.Order.Subject()),
			logging.String("reason", s.Reason),
		)
	}

	stats, err := core.NewStatsTable(g.catalog, work.Designs())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}
	engine := core.NewSimulationEngine(g.rules, stats)
	engine.Invasion = g.invasion
	engine.RegisterPhaseHook(g.tracePhase)

	report := engine.Run(ctx, work, turn, seed)
	if len(report.Movement.Violations) > 0 {
		return nil, fmt.Errorf("%w: %v", state.ErrInvariantViolation, report.Movement.Violations)
	}
	work.SetVisibility(report.Visibility)
	work.Turn = turn + 1

	if err := work.CheckInvariants(); err != nil {
		return nil, err
	}
	digest, err := work.Digest()
	if err != nil {
		return nil, err
	}
	return &Result{
		GameID:      g.id,
		Turn:        turn,
		Seed:        seed,
		Orders:      batch,
		Skipped:     skipped,
		Report:      report,
		Prior:       prior,
		Galaxy:      work,
		PriorDigest: priorDigest,
		Digest:      digest,
	}, nil
}

// Rerun resolves batch against prior exactly as Resolve would, without
// committing anything. It is used to verify journaled turns.
func Rerun(ctx context.Context, prior *state.Galaxy, batch []model.Command, rules config.Rules, catalog *kb.DesignCatalog, opts ...Option) (*Result, error) {
	g, err := NewGame("rerun", prior, rules, catalog, opts...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.resolve(ctx, prior, batch)
}

func (g *Game) tracePhase(ctx context.Context, p core.Phase, run func(context.Context)) {
	ctx, span := g.tracer.Start(ctx, "turn.phase."+string(p))
	start := time.Now()
	defer func() {
		span.End()
		if g.rec != nil {
			g.rec.PhaseDuration(string(p), time.Since(start))
		}
	}()
	run(ctx)
}

// publish notifies sinks, history and metrics about a commit.
func (g *Game) publish(ctx context.Context, res *Result) {
	for _, sink := range g.sinks {
		if err := sink.Commit(ctx, res); err != nil {
			g.log.Warn(ctx, "commit sink failed", logging.Turn(res.Turn), logging.Err(err))
		}
	}
	if g.history != nil {
		if err := g.history.Record(Summarize(res)); err != nil {
			g.log.Warn(ctx, "record turn summary failed", logging.Err(err))
		}
	}
	if g.rec != nil {
		g.rec.TurnResolved(res)
	}
}

// Summarize condenses a result into a history entry.
func Summarize(res *Result) *state.TurnSummary {
	s := &state.TurnSummary{
		Turn:     res.Turn,
		Seed:     res.Seed,
		Digest:   res.Digest,
		Orders:   len(res.Orders),
		Duration: res.Duration,
		At:       time.Now().UTC(),
		Empires:  state.SummarizeEmpires(res.Galaxy),
	}
	if r := res.Report; r != nil {
		s.Battles = len(r.Combat.Events)
		for _, ev := range r.Combat.Events {
			s.ShipsLost += ev.ShipsLost()
		}
		for _, sp := range r.Production.Stars {
			s.ShipsBuilt += sp.Built
		}
		s.LevelUps = len(r.Research.LevelUps)
		s.Defeated = append(s.Defeated, r.Defeated...)
	}
	return s
}
