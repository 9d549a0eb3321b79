// Package ledger indexes committed turns in SQLite so operators can query
// battles and empire standings without replaying the journal.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
	"github.com/signalsfoundry/stellar-empires/model"
)

// TurnRow is one committed turn.
type TurnRow struct {
	GameID      string
	Turn        int
	Seed        uint64
	PriorDigest string
	Digest      string
	Orders      int
	Skipped     int
	Battles     int
	ShipsLost   int
	ShipsBuilt  int
	Duration    time.Duration
	ResolvedAt  time.Time
}

// BattleRow is one combat site of a turn.
type BattleRow struct {
	Turn            int
	Site            int
	X, Y            float64
	Rounds          int
	ShipsLost       int
	Participants    []string
	DestroyedFleets []string
	Survivors       map[model.EmpireID]int
}

// StandingRow is an empire's standing after a turn.
type StandingRow struct {
	Turn       int
	Empire     model.EmpireID
	Status     model.EmpireStatus
	Stars      int
	Fleets     int
	Ships      int
	Population int64
	TechTotal  int
}

// SQLiteLedger is a turn.CommitSink backed by a SQLite database.
type SQLiteLedger struct {
	db  *sql.DB
	log logging.Logger
}

var _ turn.CommitSink = (*SQLiteLedger)(nil)

// OpenSQLite opens (creating if needed) the ledger at path.
func OpenSQLite(path string, log logging.Logger) (*SQLiteLedger, error) {
	if path == "" {
		return nil, errors.New("ledger: empty db path")
	}
	if log == nil {
		log = logging.Noop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteLedger{db: db, log: log}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			seed TEXT NOT NULL,
			prior_digest TEXT NOT NULL,
			digest TEXT NOT NULL,
			orders INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			battles INTEGER NOT NULL,
			ships_lost INTEGER NOT NULL,
			ships_built INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			resolved_at TEXT NOT NULL,
			PRIMARY KEY (game_id, turn)
		);`,
		`CREATE TABLE IF NOT EXISTS battles (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			site INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			rounds INTEGER NOT NULL,
			ships_lost INTEGER NOT NULL,
			participants_json TEXT NOT NULL,
			destroyed_json TEXT NOT NULL,
			survivors_json TEXT NOT NULL,
			PRIMARY KEY (game_id, turn, site),
			FOREIGN KEY (game_id, turn) REFERENCES turns(game_id, turn) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS standings (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			empire TEXT NOT NULL,
			status TEXT NOT NULL,
			stars INTEGER NOT NULL,
			fleets INTEGER NOT NULL,
			ships INTEGER NOT NULL,
			population INTEGER NOT NULL,
			tech_total INTEGER NOT NULL,
			PRIMARY KEY (game_id, turn, empire),
			FOREIGN KEY (game_id, turn) REFERENCES turns(game_id, turn) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_standings_empire ON standings(game_id, empire, turn);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("ledger schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error { return l.db.Close() }

// Commit records a committed turn, its battles and every empire's standing
// in one transaction.
func (l *SQLiteLedger) Commit(ctx context.Context, res *turn.Result) error {
	sum := turn.Summarize(res)
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Seeds are full uint64 values; SQLite integers are signed.
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO turns
		(game_id, turn, seed, prior_digest, digest, orders, skipped, battles, ships_lost, ships_built, duration_us, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.GameID, res.Turn, fmt.Sprintf("%d", res.Seed), res.PriorDigest, res.Digest,
		len(res.Orders), len(res.Skipped), sum.Battles, sum.ShipsLost, sum.ShipsBuilt,
		res.Duration.Microseconds(), sum.At.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("ledger: insert turn %d: %w", res.Turn, err)
	}

	if res.Report != nil {
		for i := range res.Report.Combat.Events {
			ev := &res.Report.Combat.Events[i]
			participants, err := json.Marshal(fleetKeys(ev.Participants))
			if err != nil {
				return err
			}
			destroyed, err := json.Marshal(fleetKeys(ev.DestroyedFleets))
			if err != nil {
				return err
			}
			survivors, err := json.Marshal(ev.Survivors)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO battles
				(game_id, turn, site, x, y, rounds, ships_lost, participants_json, destroyed_json, survivors_json)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				res.GameID, res.Turn, i, ev.Location.X, ev.Location.Y, len(ev.Rounds), ev.ShipsLost(),
				string(participants), string(destroyed), string(survivors),
			); err != nil {
				return fmt.Errorf("ledger: insert battle %d: %w", i, err)
			}
		}
	}

	for _, e := range sum.Empires {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO standings
			(game_id, turn, empire, status, stars, fleets, ships, population, tech_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.GameID, res.Turn, string(e.Empire), string(e.Status), e.Stars, e.Fleets, e.Ships, e.Population, e.TechTotal,
		); err != nil {
			return fmt.Errorf("ledger: insert standing %s: %w", e.Empire, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	l.log.Debug(ctx, "turn indexed",
		logging.GameID(res.GameID),
		logging.Turn(res.Turn),
		logging.Int("battles", sum.Battles),
	)
	return nil
}

func fleetKeys(keys []model.FleetKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

// Turns lists the committed turns of gameID in order.
func (l *SQLiteLedger) Turns(ctx context.Context, gameID string) ([]TurnRow, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT turn, seed, prior_digest, digest, orders, skipped, battles, ships_lost, ships_built, duration_us, resolved_at
		FROM turns WHERE game_id = ? ORDER BY turn`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnRow
	for rows.Next() {
		r := TurnRow{GameID: gameID}
		var seed, at string
		var durationUS int64
		if err := rows.Scan(&r.Turn, &seed, &r.PriorDigest, &r.Digest, &r.Orders, &r.Skipped, &r.Battles, &r.ShipsLost, &r.ShipsBuilt, &durationUS, &at); err != nil {
			return nil, err
		}
		if _, err := fmt.Sscanf(seed, "%d", &r.Seed); err != nil {
			return nil, fmt.Errorf("ledger: turn %d seed %q: %w", r.Turn, seed, err)
		}
		r.Duration = time.Duration(durationUS) * time.Microsecond
		if r.ResolvedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Battles lists the combat sites of one turn.
func (l *SQLiteLedger) Battles(ctx context.Context, gameID string, turnNo int) ([]BattleRow, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT site, x, y, rounds, ships_lost, participants_json, destroyed_json, survivors_json
		FROM battles WHERE game_id = ? AND turn = ? ORDER BY site`, gameID, turnNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BattleRow
	for rows.Next() {
		b := BattleRow{Turn: turnNo}
		var participants, destroyed, survivors string
		if err := rows.Scan(&b.Site, &b.X, &b.Y, &b.Rounds, &b.ShipsLost, &participants, &destroyed, &survivors); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(participants), &b.Participants); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(destroyed), &b.DestroyedFleets); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(survivors), &b.Survivors); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Standings returns an empire's standing after every committed turn.
func (l *SQLiteLedger) Standings(ctx context.Context, gameID string, empire model.EmpireID) ([]StandingRow, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT turn, status, stars, fleets, ships, population, tech_total
		FROM standings WHERE game_id = ? AND empire = ? ORDER BY turn`, gameID, string(empire))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StandingRow
	for rows.Next() {
		s := StandingRow{Empire: empire}
		var status string
		if err := rows.Scan(&s.Turn, &status, &s.Stars, &s.Fleets, &s.Ships, &s.Population, &s.TechTotal); err != nil {
			return nil, err
		}
		s.Status = model.EmpireStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}
