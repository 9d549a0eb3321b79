// Package gameapi hosts games and exposes the operations the web layer
// calls: create a game, submit orders, generate turns and query state.
package gameapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/observability"
	"github.com/signalsfoundry/stellar-empires/internal/sim/intake"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
	"github.com/signalsfoundry/stellar-empires/timectrl"
)

// defaultHistoryLimit bounds the per-game turn summaries kept in memory.
const defaultHistoryLimit = 256

// GameSpec describes a new game. Galaxy is the turn-1 state; the service
// takes ownership of it.
type GameSpec struct {
	// ID is optional; a random UUID is assigned when empty.
	ID      string
	Galaxy  *state.Galaxy
	Rules   config.Rules
	Catalog *kb.DesignCatalog
}

// GameInfo summarises a hosted game.
type GameInfo struct {
	ID       string
	Turn     int
	Status   string
	Empires  int
	Active   int
	Digest   string
	Deadline time.Time
}

// CatalogInfo lists what a game's empires can build.
type CatalogInfo struct {
	Digest     string
	Hulls      []kb.Hull
	Engines    []kb.Component
	Components []kb.Component
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCollector reports intake and turn metrics to c.
func WithCollector(c *observability.EngineCollector) Option {
	return func(s *Service) { s.collector = c }
}

// WithCommitSinks registers sinks shared by every hosted game.
func WithCommitSinks(sinks ...turn.CommitSink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithClock sets the clock behind turn deadlines.
func WithClock(c timectrl.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithInvasionPolicy enables star invasion in every hosted game.
func WithInvasionPolicy(p turn.InvasionPolicy) Option {
	return func(s *Service) { s.invasion = p }
}

// WithHistoryLimit sets how many turn summaries each game keeps.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

type hostedGame struct {
	game     *turn.Game
	deadline *timectrl.DeadlineTimer
	created  time.Time
}

// Service is the registry of running games.
type Service struct {
	mu    sync.RWMutex
	games map[string]*hostedGame

	log          logging.Logger
	collector    *observability.EngineCollector
	sinks        []turn.CommitSink
	clock        timectrl.Clock
	invasion     turn.InvasionPolicy
	historyLimit int

	// bg carries deadline-triggered resolutions; cancelled by Close.
	bg     context.Context
	cancel context.CancelFunc
}

// NewService returns an empty registry.
func NewService(opts ...Option) *Service {
	s := &Service{
		games:        make(map[string]*hostedGame),
		log:          logging.Noop(),
		clock:        timectrl.RealClock{},
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bg, s.cancel = context.WithCancel(context.Background())
	return s
}

// CreateGame registers a new game and opens turn 1 for orders.
func (s *Service) CreateGame(ctx context.Context, spec GameSpec) (string, error) {
	if spec.Galaxy == nil || spec.Catalog == nil {
		return "", fmt.Errorf("%w: galaxy and catalog are required", ErrInvalidGameSpec)
	}
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, span := StartChildSpan(ctx, "gameapi.CreateGame", id)
	defer span.End()

	opts := []turn.Option{
		turn.WithLogger(s.log),
		turn.WithCommitSinks(s.sinks...),
		turn.WithHistory(state.NewTurnHistory(s.historyLimit)),
	}
	if s.invasion != nil {
		opts = append(opts, turn.WithInvasionPolicy(s.invasion))
	}
	if s.collector != nil {
		opts = append(opts,
			turn.WithRecorder(s.collector),
			turn.WithIntakeOptions(intake.WithRecorder(s.collector)),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[id]; exists {
		return "", fmt.Errorf("%w: %q", ErrGameExists, id)
	}
	game, err := turn.NewGame(id, spec.Galaxy, spec.Rules, spec.Catalog, opts...)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrInvalidGameSpec, err)
	}
	h := &hostedGame{game: game, created: s.clock.Now()}
	h.deadline = timectrl.NewDeadlineTimer(s.clock, game.Rules().TurnDeadline, func(t int) { s.onDeadline(id, t) })
	h.deadline.Arm(game.Turn())
	s.games[id] = h
	s.collector.SetGames(len(s.games))

	empires, _, _ := spec.Galaxy.Counts()
	s.log.Info(ctx, "game created",
		logging.GameID(id),
		logging.Int("empires", empires),
		logging.Any("turn_deadline", game.Rules().TurnDeadline),
	)
	return id, nil
}

func (s *Service) lookup(gameID string) (*hostedGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.games[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGameNotFound, gameID)
	}
	return h, nil
}

// Game returns the running game, for admin and test access.
func (s *Service) Game(gameID string) (*turn.Game, error) {
	h, err := s.lookup(gameID)
	if err != nil {
		return nil, err
	}
	return h.game, nil
}

// SubmitOrder validates and buffers one command for the game's current turn.
func (s *Service) SubmitOrder(ctx context.Context, gameID string, empire model.EmpireID, cmd model.Command) (intake.Receipt, error) {
	h, err := s.lookup(gameID)
	if err != nil {
		return intake.Receipt{}, err
	}
	return h.game.Submit(logging.ContextWithLogger(ctx, loggerFor(ctx, s.log)), empire, cmd)
}

// MarkReady records that empire is done for the turn. When the rules ask
// for it and every active empire is ready, the turn is generated at once
// and the new turn number is returned; otherwise the result is zero.
func (s *Service) MarkReady(ctx context.Context, gameID string, empire model.EmpireID) (int, error) {
	h, err := s.lookup(gameID)
	if err != nil {
		return 0, err
	}
	if err := h.game.Intake().MarkReady(empire); err != nil {
		return 0, err
	}
	if !h.game.Rules().AutoGenerateWhenReady || !h.game.Intake().AllReady() {
		return 0, nil
	}
	loggerFor(ctx, s.log).Info(ctx, "all empires ready; generating turn",
		logging.GameID(gameID),
		logging.Turn(h.game.Turn()),
	)
	resolved, err := s.generate(ctx, h)
	if errors.Is(err, turn.ErrResolutionInProgress) {
		return 0, nil
	}
	return resolved, err
}

// GenerateTurn resolves the game's current turn and returns the new turn
// number, the one now accepting orders. A concurrent call fails with
// turn.ErrResolutionInProgress and changes nothing.
func (s *Service) GenerateTurn(ctx context.Context, gameID string) (int, error) {
	h, err := s.lookup(gameID)
	if err != nil {
		return 0, err
	}
	return s.generate(ctx, h)
}

func (s *Service) generate(ctx context.Context, h *hostedGame) (int, error) {
	ctx, span := StartChildSpan(ctx, "gameapi.GenerateTurn", h.game.ID(), attribute.Int("turn", h.game.Turn()))
	defer span.End()

	res, err := h.game.Resolve(ctx)
	if err != nil {
		if !errors.Is(err, turn.ErrResolutionInProgress) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return 0, err
	}
	next := res.Galaxy.Turn
	h.deadline.Arm(next)
	return next, nil
}

func (s *Service) onDeadline(gameID string, t int) {
	h, err := s.lookup(gameID)
	if err != nil || h.game.Turn() != t {
		return
	}
	ctx := logging.ContextWithGameID(s.bg, gameID)
	s.log.Info(ctx, "turn deadline reached; generating turn",
		logging.GameID(gameID),
		logging.Turn(t),
	)
	if _, err := s.generate(ctx, h); err != nil {
		if errors.Is(err, turn.ErrResolutionInProgress) {
			return
		}
		s.log.Error(ctx, "deadline turn generation failed",
			logging.GameID(gameID),
			logging.Turn(t),
			logging.Err(err),
		)
		// Keep the game moving: the next deadline retries.
		h.deadline.Arm(h.game.Turn())
	}
}

// QueryState returns the committed galaxy as empire sees it.
func (s *Service) QueryState(ctx context.Context, gameID string, empire model.EmpireID) (*state.View, error) {
	h, err := s.lookup(gameID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.game.View(empire)
}

// Catalog returns the hulls and components of a game's catalog.
func (s *Service) Catalog(ctx context.Context, gameID string) (*CatalogInfo, error) {
	h, err := s.lookup(gameID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := h.game.Catalog()
	return &CatalogInfo{
		Digest:     c.Digest(),
		Hulls:      c.Hulls(),
		Engines:    c.Engines(),
		Components: c.Components(),
	}, nil
}

// History returns the recorded turn summaries of a game, oldest first.
func (s *Service) History(gameID string) ([]*state.TurnSummary, error) {
	h, err := s.lookup(gameID)
	if err != nil {
		return nil, err
	}
	if hist := h.game.History(); hist != nil {
		return hist.List(), nil
	}
	return nil, nil
}

// Info summarises one game.
func (s *Service) Info(gameID string) (GameInfo, error) {
	h, err := s.lookup(gameID)
	if err != nil {
		return GameInfo{}, err
	}
	return info(h), nil
}

func info(h *hostedGame) GameInfo {
	g := h.game.Committed()
	empires, _, _ := g.Counts()
	digest, _ := g.Digest()
	deadline, _ := h.deadline.Deadline()
	return GameInfo{
		ID:       h.game.ID(),
		Turn:     g.Turn,
		Status:   h.game.Status().String(),
		Empires:  empires,
		Active:   len(g.ActiveEmpires()),
		Digest:   digest,
		Deadline: deadline,
	}
}

// Games lists every hosted game ordered by id.
func (s *Service) Games() []GameInfo {
	s.mu.RLock()
	hosted := make([]*hostedGame, 0, len(s.games))
	for _, h := range s.games {
		hosted = append(hosted, h)
	}
	s.mu.RUnlock()

	out := make([]GameInfo, 0, len(hosted))
	for _, h := range hosted {
		out = append(out, info(h))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveGame stops and forgets a game.
func (s *Service) RemoveGame(ctx context.Context, gameID string) error {
	s.mu.Lock()
	h, ok := s.games[gameID]
	if ok {
		delete(s.games, gameID)
	}
	n := len(s.games)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrGameNotFound, gameID)
	}
	h.deadline.Stop()
	s.collector.SetGames(n)
	s.collector.ForgetGame(gameID)
	s.log.Info(ctx, "game removed", logging.GameID(gameID))
	return nil
}

// Close stops every deadline timer. Games stay queryable.
func (s *Service) Close() {
	s.cancel()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.games {
		h.deadline.Stop()
	}
}
