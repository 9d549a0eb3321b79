package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/journal"
	"github.com/signalsfoundry/stellar-empires/internal/logging"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/internal/sim/turn"
	"github.com/signalsfoundry/stellar-empires/kb"
)

// options configure one headless run.
type options struct {
	ScenarioPath string
	RulesPath    string
	CatalogPath  string
	Turns        int
	JournalDir   string
	JournalCodec string
	Verify       bool
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.ScenarioPath, "scenario", "configs/scenarios/skirmish.yaml", "YAML scenario to play")
	flag.StringVar(&opts.RulesPath, "rules", "configs/rules.yaml", "YAML rules file; stock rules when empty")
	flag.StringVar(&opts.CatalogPath, "catalog", "", "YAML design catalog; bundled catalog when empty")
	flag.IntVar(&opts.Turns, "turns", 10, "number of turns to resolve")
	flag.StringVar(&opts.JournalDir, "journal-dir", "", "write a turn journal to this directory")
	flag.StringVar(&opts.JournalCodec, "journal-codec", "zstd", "journal compression: zstd or lz4")
	flag.BoolVar(&opts.Verify, "verify", false, "replay the journal after the run and compare digests")
	flag.Parse()

	log := logging.NewFromEnv()
	if err := run(context.Background(), opts, os.Stdout, log); err != nil {
		log.Error(context.Background(), "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer, log logging.Logger) error {
	if opts.Turns <= 0 {
		return errors.New("turns must be positive")
	}
	if opts.Verify && opts.JournalDir == "" {
		return errors.New("-verify needs -journal-dir")
	}

	rules := config.DefaultRules()
	if opts.RulesPath != "" {
		var err error
		if rules, err = config.LoadRules(opts.RulesPath); err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
	}
	var (
		catalog *kb.DesignCatalog
		err     error
	)
	if opts.CatalogPath != "" {
		catalog, err = kb.LoadCatalogFile(opts.CatalogPath)
	} else {
		catalog, err = kb.DefaultCatalog()
	}
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	galaxy, err := state.LoadScenarioFile(opts.ScenarioPath, catalog)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}

	gameOpts := []turn.Option{turn.WithLogger(log)}
	var store journal.Store
	if opts.JournalDir != "" {
		codec, err := journal.CodecByName(opts.JournalCodec)
		if err != nil {
			return err
		}
		if store, err = journal.NewFileStore(opts.JournalDir, codec); err != nil {
			return err
		}
		gameOpts = append(gameOpts, turn.WithCommitSinks(journal.New(store, log)))
	}

	game, err := turn.NewGame("simulator", galaxy, rules, catalog, gameOpts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Playing %s for %d turns\n", opts.ScenarioPath, opts.Turns)
	for i := 0; i < opts.Turns; i++ {
		res, err := game.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("turn %d: %w", game.Turn(), err)
		}
		printSummary(out, turn.Summarize(res))
		if active := res.Galaxy.ActiveEmpires(); len(active) <= 1 {
			fmt.Fprintf(out, "Game over after turn %d: %d empire(s) remain\n", res.Turn, len(active))
			break
		}
	}

	if opts.Verify {
		n, err := journal.Verify(ctx, store, game.ID(), rules, catalog)
		if err != nil {
			return fmt.Errorf("verify journal: %w", err)
		}
		fmt.Fprintf(out, "Journal verified: %d turn(s) replay to the recorded digests\n", n)
	}
	return nil
}

func printSummary(out io.Writer, s *state.TurnSummary) {
	fmt.Fprintf(out, "Turn %3d  digest=%s  orders=%d battles=%d lost=%d built=%d level-ups=%d\n",
		s.Turn, shortDigest(s.Digest), s.Orders, s.Battles, s.ShipsLost, s.ShipsBuilt, s.LevelUps)
	for _, e := range s.Empires {
		fmt.Fprintf(out, "    %-8s %-9s stars=%d fleets=%d ships=%d pop=%d tech=%d\n",
			e.Empire, e.Status, e.Stars, e.Fleets, e.Ships, e.Population, e.TechTotal)
	}
	for _, d := range s.Defeated {
		fmt.Fprintf(out, "    %s was defeated\n", d)
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
