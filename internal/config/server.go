package config

import (
	"os"
	"strings"
)

// ServerConfig carries process-level settings for cmd/empire-server.
type ServerConfig struct {
	GRPCAddr  string
	AdminAddr string

	RulesPath    string
	CatalogPath  string
	ScenarioPath string

	// JournalDir enables the on-disk turn journal when non-empty.
	JournalDir   string
	JournalCodec string // zstd or lz4
	// LedgerPath enables the SQLite turn ledger when non-empty.
	LedgerPath string
}

// ServerConfigFromEnv reads EMPIRE_* environment variables, using defaults
// for anything unset.
func ServerConfigFromEnv() ServerConfig {
	return ServerConfig{
		GRPCAddr:     envOr("EMPIRE_GRPC_ADDR", ":50061"),
		AdminAddr:    envOr("EMPIRE_ADMIN_ADDR", ":9091"),
		RulesPath:    os.Getenv("EMPIRE_RULES"),
		CatalogPath:  os.Getenv("EMPIRE_CATALOG"),
		ScenarioPath: os.Getenv("EMPIRE_SCENARIO"),
		JournalDir:   os.Getenv("EMPIRE_JOURNAL_DIR"),
		JournalCodec: strings.ToLower(envOr("EMPIRE_JOURNAL_CODEC", "zstd")),
		LedgerPath:   os.Getenv("EMPIRE_LEDGER"),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
