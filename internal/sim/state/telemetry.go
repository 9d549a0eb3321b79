package state

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/stellar-empires/model"
)

// EmpireTurnStats captures one empire's standing after a turn.
type EmpireTurnStats struct {
	Empire     model.EmpireID
	Status     model.EmpireStatus
	Stars      int
	Fleets     int
	Ships      int
	Population int64
	TechTotal  int
}

// TurnSummary is the per-turn record kept for operators.
type TurnSummary struct {
	// Turn is the number of the resolved turn.
	Turn int
	// Seed is the per-turn seed the resolution used.
	Seed uint64
	// Digest is the hash of the galaxy committed by this turn.
	Digest string

	Orders     int
	Battles    int
	ShipsLost  int
	ShipsBuilt int
	LevelUps   int
	Defeated   []model.EmpireID

	Empires  []EmpireTurnStats
	Duration time.Duration
	At       time.Time
}

func (s *TurnSummary) clone() *TurnSummary {
	cp := *s
	cp.Defeated = append([]model.EmpireID(nil), s.Defeated...)
	cp.Empires = append([]EmpireTurnStats(nil), s.Empires...)
	return &cp
}

// SummarizeEmpires computes per-empire stats for g, sorted by empire id.
func SummarizeEmpires(g *Galaxy) []EmpireTurnStats {
	byID := make(map[model.EmpireID]*EmpireTurnStats, len(g.empires))
	out := make([]EmpireTurnStats, 0, len(g.empires))
	for _, id := range g.EmpireIDs() {
		e := g.empires[id]
		tech := 0
		for _, lvl := range e.TechLevels {
			tech += lvl
		}
		out = append(out, EmpireTurnStats{Empire: id, Status: e.Status, TechTotal: tech})
	}
	for i := range out {
		byID[out[i].Empire] = &out[i]
	}
	for _, s := range g.stars {
		if st, ok := byID[s.Owner]; ok {
			st.Stars++
			st.Population += s.Population
		}
	}
	for key, f := range g.fleets {
		if st, ok := byID[key.Empire]; ok {
			st.Fleets++
			st.Ships += len(f.Ships)
		}
	}
	return out
}

// TurnHistory is a concurrency-safe store of turn summaries. It keeps at
// most limit entries, dropping the oldest.
type TurnHistory struct {
	mu     sync.RWMutex
	limit  int
	byTurn map[int]*TurnSummary
}

// NewTurnHistory creates a history holding up to limit turns (unbounded
// when limit <= 0).
func NewTurnHistory(limit int) *TurnHistory {
	return &TurnHistory{
		limit:  limit,
		byTurn: make(map[int]*TurnSummary),
	}
}

// Record stores a copy of the summary, replacing any entry for the same turn.
func (h *TurnHistory) Record(s *TurnSummary) error {
	if s == nil {
		return errors.New("turn summary is nil")
	}
	if s.Turn <= 0 {
		return errors.New("turn number is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.byTurn[s.Turn] = s.clone()
	if h.limit > 0 && len(h.byTurn) > h.limit {
		oldest := s.Turn
		for t := range h.byTurn {
			if t < oldest {
				oldest = t
			}
		}
		delete(h.byTurn, oldest)
	}
	return nil
}

// Get returns a copy of the summary for turn, or nil.
func (h *TurnHistory) Get(turn int) *TurnSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.byTurn[turn]
	if !ok {
		return nil
	}
	return s.clone()
}

// Latest returns a copy of the most recent summary, or nil.
func (h *TurnHistory) Latest() *TurnSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var latest *TurnSummary
	for _, s := range h.byTurn {
		if latest == nil || s.Turn > latest.Turn {
			latest = s
		}
	}
	if latest == nil {
		return nil
	}
	return latest.clone()
}

// List returns copies of every stored summary in turn order.
func (h *TurnHistory) List() []*TurnSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*TurnSummary, 0, len(h.byTurn))
	for _, s := range h.byTurn {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Turn < out[j].Turn })
	return out
}
