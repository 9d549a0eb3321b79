package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEnsureRequestIDIsStable(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatal("expected generated request id")
	}
	_, again := EnsureRequestID(ctx)
	if again != id {
		t.Fatalf("request id changed: %q -> %q", id, again)
	}
}

func TestGameIDRoundTrip(t *testing.T) {
	ctx := ContextWithGameID(context.Background(), "g-1")
	if got := GameIDFromContext(ctx); got != "g-1" {
		t.Fatalf("GameIDFromContext = %q, want g-1", got)
	}
	if got := GameIDFromContext(context.Background()); got != "" {
		t.Fatalf("GameIDFromContext on empty ctx = %q", got)
	}
}

func TestLoggerFromContextFallsBackToNil(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatal("expected nil logger")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatal("nil logger should be replaced by Noop")
	}
}

func TestErrField(t *testing.T) {
	f := Err(errors.New("boom"))
	if f.Key != "error" || f.Value != "boom" {
		t.Fatalf("Err field = %+v", f)
	}
}

func TestJSONLoggerWritesDomainFields(t *testing.T) {
	var buf bytes.Buffer
	type empireID string
	log := New(Config{Format: "json", Level: "debug", Output: &buf}).With(GameID("g-7"))
	log.Debug(context.Background(), "turn resolved",
		Turn(3),
		Empire(empireID("blue")),
		Duration("took", 1500*time.Microsecond),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]any{"msg": "turn resolved", "game_id": "g-7", "turn": 3.0, "empire": "blue", "took": 1.5}
	for k, v := range want {
		if entry[k] != v {
			t.Fatalf("%s = %v, want %v (line %s)", k, entry[k], v, buf.String())
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	log.Warn(context.Background(), "shown")
	if buf.Len() == 0 {
		t.Fatal("warn not logged at warn level")
	}
}

func TestNewFromEnvPrefersEmpireVariables(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("EMPIRE_LOG_LEVEL", "debug")
	if got := envFirst("EMPIRE_LOG_LEVEL", "LOG_LEVEL"); got != "debug" {
		t.Fatalf("envFirst = %q, want debug", got)
	}
	t.Setenv("EMPIRE_LOG_LEVEL", " ")
	if got := envFirst("EMPIRE_LOG_LEVEL", "LOG_LEVEL"); got != "error" {
		t.Fatalf("envFirst = %q, want error", got)
	}
}
