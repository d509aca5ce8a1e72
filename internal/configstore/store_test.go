package configstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestNewWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	cfg, _ := s.GetConfig(context.Background())
	if cfg.MaxMoves != 200 || cfg.KFactor != 32 || len(cfg.Openings) == 0 || !cfg.NextFirstIsWhite {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.EngineOptions().ProposalTimeout != 30*time.Second {
		t.Fatalf("ProposalTimeout = %v", cfg.EngineOptions().ProposalTimeout)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"max_moves": 0, "move_delay_ms": 0, "k_factor": 16}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg, _ := s.GetConfig(context.Background())
	if cfg.MaxMoves != 200 {
		t.Fatalf("MaxMoves = %d, want normalised 200", cfg.MaxMoves)
	}
	if cfg.MoveDelayMS != 0 {
		t.Fatalf("MoveDelayMS = %d, want explicit 0", cfg.MoveDelayMS)
	}
	if cfg.KFactor != 16 {
		t.Fatalf("KFactor = %v", cfg.KFactor)
	}
	if cfg.GameDelayMS != 2000 {
		t.Fatalf("GameDelayMS = %d, want default", cfg.GameDelayMS)
	}
}

func TestGetAndToggleAssignment(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, err := s.GetAndToggleAssignment(ctx, "A", "B")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := s.GetAndToggleAssignment(ctx, "A", "B")
	if first.White != "A" || second.White != "B" {
		t.Fatalf("assignments = %+v %+v", first, second)
	}

	// the flag survives a restart
	s2, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	third, _ := s2.GetAndToggleAssignment(ctx, "A", "B")
	if third.White != "A" {
		t.Fatalf("third = %+v", third)
	}
}

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	var seen []Config
	s.OnUpdate(func(c Config) { seen = append(seen, c) })

	cfg, _ := s.GetConfig(ctx)
	cfg.MaxMoves = 80
	cfg.NextFirstIsWhite = false
	got, err := s.UpdateConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got.MaxMoves != 80 || !got.NextFirstIsWhite {
		t.Fatalf("got %+v", got)
	}
	if len(seen) != 1 || seen[0].MaxMoves != 80 {
		t.Fatalf("listener saw %+v", seen)
	}

	cfg.MoveDelayMS = -1
	cfg.KFactor = 500
	if _, err := s.UpdateConfig(ctx, cfg); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if len(seen) != 1 {
		t.Fatalf("listener called on rejected update")
	}
}
