package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Orchestrator.GlobalDeadline != 25*time.Second {
		t.Errorf("GlobalDeadline = %v, want 25s", cfg.Orchestrator.GlobalDeadline)
	}
	if cfg.Index.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.Index.TopK)
	}
	if cfg.WebSearch.MaxResults != 3 {
		t.Errorf("MaxResults = %d, want 3", cfg.WebSearch.MaxResults)
	}
	if cfg.Warehouse.Table != "disaster_events" {
		t.Errorf("Table = %q", cfg.Warehouse.Table)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("REQUEST_DEADLINE", "10s")
	t.Setenv("WEBSEARCH_MAX_RESULTS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTP.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.HTTP.Port)
	}
	if cfg.Orchestrator.GlobalDeadline != 10*time.Second {
		t.Errorf("GlobalDeadline = %v, want 10s", cfg.Orchestrator.GlobalDeadline)
	}
	if cfg.WebSearch.MaxResults != 7 {
		t.Errorf("MaxResults = %d, want 7", cfg.WebSearch.MaxResults)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("PORT", "70000")

	if _, err := Load(); err == nil {
		t.Error("out-of-range port should be rejected")
	}
}

func TestGetEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("REQUEST_DEADLINE", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Orchestrator.GlobalDeadline != 25*time.Second {
		t.Errorf("GlobalDeadline = %v, want fallback 25s", cfg.Orchestrator.GlobalDeadline)
	}
}
