// Package journal records every committed turn so it can be audited and
// re-resolved later. Each entry holds the canonical galaxy the turn started
// from, the accepted orders and the digests before and after.
package journal

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
	"github.com/signalsfoundry/stellar-empires/kb"
)

// Journal is a turn.CommitSink writing entries to a Store.
type Journal struct {
	store Store
	log   logging.Logger
}

var _ turn.CommitSink = (*Journal)(nil)

// New returns a journal over store.
func New(store Store, log logging.Logger) *Journal {
	if log == nil {
		log = logging.Noop()
	}
	return &Journal{store: store, log: log}
}

// Store returns the underlying store.
func (j *Journal) Store() Store { return j.store }

// Commit journals a committed turn.
func (j *Journal) Commit(ctx context.Context, res *turn.Result) error {
	e, err := NewEntry(res)
	if err != nil {
		return err
	}
	if err := j.store.Put(ctx, e); err != nil {
		return fmt.Errorf("journal turn %d: %w", res.Turn, err)
	}
	j.log.Debug(ctx, "turn journaled",
		logging.GameID(res.GameID),
		logging.Turn(res.Turn),
		logging.Int("orders", len(e.Orders)),
		logging.Int("prior_bytes", len(e.Prior)),
	)
	return nil
}

// Replay re-resolves e and checks that both digests match what was
// journaled. Options must reproduce the game's configuration, for example
// its invasion policy.
func Replay(ctx context.Context, e *Entry, rules config.Rules, catalog *kb.DesignCatalog, opts ...turn.Option) (*turn.Result, error) {
	if got := state.DigestBytes(e.Prior); got != e.PriorDigest {
		return nil, fmt.Errorf("%w: turn %d prior digest %s, journaled %s", ErrDigestMismatch, e.Header.Turn, got, e.PriorDigest)
	}
	prior, err := state.UnmarshalCanonical(e.Prior)
	if err != nil {
		return nil, err
	}
	if prior.Turn != e.Header.Turn {
		return nil, fmt.Errorf("journal: entry for turn %d holds galaxy at turn %d", e.Header.Turn, prior.Turn)
	}
	orders, err := DecodeOrders(e.Orders)
	if err != nil {
		return nil, err
	}
	res, err := turn.Rerun(ctx, prior, orders, rules, catalog, opts...)
	if err != nil {
		return nil, err
	}
	if res.Digest != e.Digest {
		return res, fmt.Errorf("%w: turn %d resolved to %s, journaled %s", ErrDigestMismatch, e.Header.Turn, res.Digest, e.Digest)
	}
	return res, nil
}

// Verify replays every journaled turn of gameID in order and also checks
// that each turn starts from the galaxy the previous one produced.
func Verify(ctx context.Context, store Store, gameID string, rules config.Rules, catalog *kb.DesignCatalog, opts ...turn.Option) (int, error) {
	turns, err := store.Turns(ctx, gameID)
	if err != nil {
		return 0, err
	}
	var prevDigest string
	for i, t := range turns {
		e, err := store.Get(ctx, gameID, t)
		if err != nil {
			return i, err
		}
		if i > 0 && turns[i-1] == t-1 && e.PriorDigest != prevDigest {
			return i, fmt.Errorf("%w: turn %d does not continue from turn %d", ErrDigestMismatch, t, turns[i-1])
		}
		if _, err := Replay(ctx, e, rules, catalog, opts...); err != nil {
			return i, err
		}
		prevDigest = e.Digest
	}
	return len(turns), nil
}
