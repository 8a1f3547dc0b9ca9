package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"run-daily"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Command != CommandRunDaily {
		t.Errorf("Expected command '%s', got '%s'", CommandRunDaily, cfg.Command)
	}
	if cfg.DBPath != "displacement_watch.db" {
		t.Errorf("Expected default db path, got '%s'", cfg.DBPath)
	}
	if cfg.FeedTimeout != 20*time.Second {
		t.Errorf("Expected feed timeout 20s, got %v", cfg.FeedTimeout)
	}
	if cfg.RunDaily.SinceHours != 24 {
		t.Errorf("Expected since hours 24, got %d", cfg.RunDaily.SinceHours)
	}
	if cfg.RunDaily.MaxGDELT != 100 {
		t.Errorf("Expected max gdelt 100, got %d", cfg.RunDaily.MaxGDELT)
	}
	if cfg.RunDaily.Refine {
		t.Error("Expected refine to be off by default")
	}
	if cfg.Version == "" {
		t.Error("Expected version to be set")
	}
}

func TestLoadRunDailyFlags(t *testing.T) {
	cfg, err := Load([]string{"--db", "/tmp/dw.db", "--debug", "run-daily", "--since-hours", "48", "--max-gdelt", "250", "--refine"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.DBPath != "/tmp/dw.db" {
		t.Errorf("Expected db path '/tmp/dw.db', got '%s'", cfg.DBPath)
	}
	if !cfg.Debug {
		t.Error("Expected debug to be enabled")
	}
	if cfg.RunDaily.SinceHours != 48 || cfg.RunDaily.MaxGDELT != 250 || !cfg.RunDaily.Refine {
		t.Errorf("Unexpected run-daily options: %+v", cfg.RunDaily)
	}
}

func TestLoadServeFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("API_ACCESS_KEY", "secret")
	t.Setenv("SCHEDULER_INTERVAL", "3600")

	cfg, err := Load([]string{"serve", "--run-on-start"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Command != CommandServe {
		t.Errorf("Expected command '%s', got '%s'", CommandServe, cfg.Command)
	}
	if cfg.Serve.Port != "9090" {
		t.Errorf("Expected port '9090', got '%s'", cfg.Serve.Port)
	}
	if cfg.Serve.APIAccessKey != "secret" {
		t.Errorf("Expected API key 'secret', got '%s'", cfg.Serve.APIAccessKey)
	}
	if cfg.Serve.SchedulerInterval != time.Hour {
		t.Errorf("Expected scheduler interval 1h, got %v", cfg.Serve.SchedulerInterval)
	}
	if !cfg.Serve.RunOnStart {
		t.Error("Expected run on start to be enabled")
	}
	if cfg.Serve.RunDaily.SinceHours != 24 {
		t.Errorf("Expected serve since hours 24, got %d", cfg.Serve.RunDaily.SinceHours)
	}
}

func TestLoadSelectionAndPromote(t *testing.T) {
	cfg, err := Load([]string{"selection", "--date", "2026-02-20", "--format", "rss"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Selection.Date != "2026-02-20" || cfg.Selection.Format != "rss" {
		t.Errorf("Unexpected selection options: %+v", cfg.Selection)
	}

	cfg, err = Load([]string{"promote", "out/query_pack.proposed.yaml"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Promote.Source != "out/query_pack.proposed.yaml" {
		t.Errorf("Expected promote source, got '%s'", cfg.Promote.Source)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing command", []string{}},
		{"unknown command", []string{"publish"}},
		{"bad format", []string{"selection", "--format", "docx"}},
		{"promote without source", []string{"promote"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args); err == nil {
				t.Errorf("Expected error for args %v", tt.args)
			}
		})
	}
}
