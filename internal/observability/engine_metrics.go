package observability

import (
	"time"

	"github.com/signalsfoundry/stellar-empires/internal/sim/intake"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
)

var (
	_ intake.Recorder = (*EngineCollector)(nil)
	_ turn.Recorder   = (*EngineCollector)(nil)
)

// OrderAccepted counts an accepted order of the given kind.
func (c *EngineCollector) OrderAccepted(kind string) {
	if c == nil || c.OrdersAccepted == nil {
		return
	}
	c.OrdersAccepted.WithLabelValues(kind).Inc()
}

// OrderRejected counts a rejected order by rejection code.
func (c *EngineCollector) OrderRejected(code string) {
	if c == nil || c.OrdersRejected == nil {
		return
	}
	c.OrdersRejected.WithLabelValues(code).Inc()
}

// TurnResolved records a committed turn and refreshes the game's gauges.
func (c *EngineCollector) TurnResolved(res *turn.Result) {
	if c == nil || res == nil {
		return
	}
	c.TurnsResolved.Inc()
	c.TurnDuration.Observe(res.Duration.Seconds())
	if r := res.Report; r != nil {
		c.CombatSites.Add(float64(len(r.Combat.Events)))
		for i := range r.Combat.Events {
			c.ShipsDestroyed.Add(float64(r.Combat.Events[i].ShipsLost()))
		}
		for _, sp := range r.Production.Stars {
			c.ShipsBuilt.Add(float64(sp.Built))
		}
		c.ResearchLevelUp.Add(float64(len(r.Research.LevelUps)))
	}
	if g := res.Galaxy; g != nil {
		_, _, fleets := g.Counts()
		c.GalaxyFleets.WithLabelValues(res.GameID).Set(float64(fleets))
		c.GalaxyEmpires.WithLabelValues(res.GameID).Set(float64(len(g.ActiveEmpires())))
		c.GameTurn.WithLabelValues(res.GameID).Set(float64(g.Turn))
	}
}

// TurnFailed counts an aborted resolution.
func (c *EngineCollector) TurnFailed(reason string) {
	if c == nil || c.TurnFailures == nil {
		return
	}
	c.TurnFailures.WithLabelValues(reason).Inc()
}

// PhaseDuration observes one resolution phase.
func (c *EngineCollector) PhaseDuration(phase string, d time.Duration) {
	if c == nil || c.PhaseDurations == nil {
		return
	}
	c.PhaseDurations.WithLabelValues(phase).Observe(d.Seconds())
}

// SetGames updates the hosted game count.
func (c *EngineCollector) SetGames(n int) {
	if c == nil || c.GamesActive == nil {
		return
	}
	c.GamesActive.Set(float64(n))
}

// ForgetGame drops the per-game gauges of a removed game.
func (c *EngineCollector) ForgetGame(gameID string) {
	if c == nil {
		return
	}
	c.GalaxyFleets.DeleteLabelValues(gameID)
	c.GalaxyEmpires.DeleteLabelValues(gameID)
	c.GameTurn.DeleteLabelValues(gameID)
}
