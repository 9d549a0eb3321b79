// Package intake buffers the orders each empire submits for the current
// turn. Every empire has its own slot; submissions from different empires
// never contend on a shared lock.
package intake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

// Recorder receives intake outcomes, typically a metrics collector.
type Recorder interface {
	OrderAccepted(kind string)
	OrderRejected(code string)
}

// Receipt acknowledges an accepted command.
type Receipt struct {
	Empire  model.EmpireID
	Turn    int
	Subject string
	// Replaced is true when the command superseded an earlier one with the
	// same subject.
	Replaced bool
	// Pending is the number of commands buffered for the empire.
	Pending int
}

type slot struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	orders  []model.Command
	ready   bool
}

func (s *slot) indexOf(subject string) int {
	for i, c := range s.orders {
		if c.Order.Subject() == subject {
			return i
		}
	}
	return -1
}

// Option configures an Intake.
type Option func(*Intake)

// WithLogger sets the intake logger.
func WithLogger(l logging.Logger) Option {
	return func(in *Intake) {
		if l != nil {
			in.log = l
		}
	}
}

// WithRecorder reports accepted and rejected commands to r.
func WithRecorder(r Recorder) Option {
	return func(in *Intake) { in.rec = r }
}

// Intake validates commands against the committed galaxy and buffers them
// until the orchestrator collects the batch.
type Intake struct {
	rules   config.Rules
	catalog *kb.DesignCatalog
	current func() *state.Galaxy
	log     logging.Logger
	rec     Recorder

	// slots is built once; empires are never added during a game.
	slots  map[model.EmpireID]*slot
	closed atomic.Bool
}

// New creates an intake with one slot per empire of the galaxy returned by
// current. current must always return the committed galaxy.
func New(rules config.Rules, catalog *kb.DesignCatalog, current func() *state.Galaxy, opts ...Option) *Intake {
	in := &Intake{
		rules:   rules,
		catalog: catalog,
		current: current,
		log:     logging.Noop(),
		slots:   make(map[model.EmpireID]*slot),
	}
	for _, opt := range opts {
		opt(in)
	}
	for _, id := range current().EmpireIDs() {
		in.slots[id] = &slot{
			limiter: rate.NewLimiter(rate.Limit(rules.OrderRate), rules.OrderBurst),
		}
	}
	return in
}

// Submit validates cmd on behalf of empire and buffers it. A command whose
// subject matches a buffered one replaces it in place.
func (in *Intake) Submit(ctx context.Context, empire model.EmpireID, cmd model.Command) (Receipt, error) {
	receipt, err := in.submit(empire, cmd)
	if err != nil {
		var rej *RejectionError
		code := string(CodeInvalidOrder)
		if errors.As(err, &rej) {
			code = string(rej.Code)
		}
		if in.rec != nil {
			in.rec.OrderRejected(code)
		}
		in.log.Info(ctx, "order rejected",
			logging.Empire(empire),
			logging.String("code", code),
			logging.Err(err),
		)
		return Receipt{}, err
	}
	if in.rec != nil {
		in.rec.OrderAccepted(OrderKind(cmd.Order))
	}
	in.log.Debug(ctx, "order accepted",
		logging.Empire(empire),
		logging.String("subject", receipt.Subject),
		logging.Turn(receipt.Turn),
	)
	return receipt, nil
}

func (in *Intake) submit(empire model.EmpireID, cmd model.Command) (Receipt, error) {
	sl, ok := in.slots[empire]
	if !ok {
		return Receipt{}, reject(ErrUnknownEmpire, "%q", empire)
	}
	if cmd.Empire != empire {
		return Receipt{}, reject(ErrForeignAsset, "command signed by %q submitted as %q", cmd.Empire, empire)
	}
	if cmd.Order == nil {
		return Receipt{}, reject(ErrInvalidOrder, "command carries no order")
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	// Checked under the slot lock so Close observes every accepted command.
	if in.closed.Load() {
		return Receipt{}, reject(ErrTurnClosed, "turn is resolving")
	}
	if !sl.limiter.Allow() {
		return Receipt{}, reject(ErrRateLimited, "%q", empire)
	}

	g := in.current()
	e := g.Empire(empire)
	if e == nil || e.Status == model.EmpireDefeated {
		return Receipt{}, reject(ErrUnknownEmpire, "%q is not active", empire)
	}
	if cmd.Turn != g.Turn {
		return Receipt{}, reject(ErrStaleTurn, "command for turn %d, current turn is %d", cmd.Turn, g.Turn)
	}

	v := validator{rules: in.rules, catalog: in.catalog, galaxy: g, empire: e, pending: sl.orders}
	order, err := v.check(cmd.Order)
	if err != nil {
		return Receipt{}, err
	}
	cmd.Order = order

	subject := order.Subject()
	receipt := Receipt{Empire: empire, Turn: cmd.Turn, Subject: subject}
	if i := sl.indexOf(subject); i >= 0 {
		sl.orders[i] = cmd
		receipt.Replaced = true
	} else {
		sl.orders = append(sl.orders, cmd)
	}
	receipt.Pending = len(sl.orders)
	return receipt, nil
}

// Pending returns a copy of the commands buffered for empire.
func (in *Intake) Pending(empire model.EmpireID) []model.Command {
	sl, ok := in.slots[empire]
	if !ok {
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return append([]model.Command(nil), sl.orders...)
}

// MarkReady flags that empire has finished submitting for the turn.
func (in *Intake) MarkReady(empire model.EmpireID) error {
	sl, ok := in.slots[empire]
	if !ok {
		return reject(ErrUnknownEmpire, "%q", empire)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if in.closed.Load() {
		return reject(ErrTurnClosed, "turn is resolving")
	}
	sl.ready = true
	return nil
}

// AllReady reports whether every active empire has marked itself ready.
func (in *Intake) AllReady() bool {
	active := in.current().ActiveEmpires()
	if len(active) == 0 {
		return false
	}
	for _, id := range active {
		sl, ok := in.slots[id]
		if !ok {
			return false
		}
		sl.mu.Lock()
		ready := sl.ready
		sl.mu.Unlock()
		if !ready {
			return false
		}
	}
	return true
}

// Close stops accepting commands and returns the buffered batch in empire-id
// order, each empire's commands in submission order. The buffers are kept
// until Reopen.
func (in *Intake) Close() []model.Command {
	in.closed.Store(true)
	var batch []model.Command
	for _, id := range in.empireIDs() {
		sl := in.slots[id]
		sl.mu.Lock()
		batch = append(batch, sl.orders...)
		sl.mu.Unlock()
	}
	return batch
}

// Reopen accepts commands again. When committed is true the buffers and ready
// flags are cleared because their turn has been resolved; otherwise the batch
// is retained for the next attempt.
func (in *Intake) Reopen(committed bool) {
	if committed {
		for _, sl := range in.slots {
			sl.mu.Lock()
			sl.orders = nil
			sl.ready = false
			sl.mu.Unlock()
		}
	}
	in.closed.Store(false)
}

// Closed reports whether the intake is refusing commands.
func (in *Intake) Closed() bool { return in.closed.Load() }

func (in *Intake) empireIDs() []model.EmpireID {
	ids := make([]model.EmpireID, 0, len(in.slots))
	for id := range in.slots {
		ids = append(ids, id)
	}
	return model.SortEmpireIDs(ids)
}

// OrderKind names the order variant, used for metrics labels.
func OrderKind(o model.Order) string {
	switch o.(type) {
	case model.WaypointOrder:
		return "waypoints"
	case model.ProductionOrder:
		return "production"
	case model.ResearchOrder:
		return "research"
	case model.DesignOrder:
		return "design"
	case model.RelationOrder:
		return "relation"
	case model.TacticOrder:
		return "tactic"
	default:
		return "unknown"
	}
}
