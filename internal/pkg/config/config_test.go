package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("api")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telemetry.ServiceName != "api" {
		t.Errorf("service name = %q, want api", cfg.Telemetry.ServiceName)
	}
	if cfg.Places.PageDelay != 2*time.Second {
		t.Errorf("page delay = %v, want 2s", cfg.Places.PageDelay)
	}
	if len(cfg.Places.IncludedTypes) != 1 || cfg.Places.IncludedTypes[0] != "pharmacy" {
		t.Errorf("included types = %v", cfg.Places.IncludedTypes)
	}
	if cfg.Search.Concurrency != 1 {
		t.Errorf("concurrency = %d, want 1", cfg.Search.Concurrency)
	}
	if cfg.Search.CellTimeout != time.Minute {
		t.Errorf("cell timeout = %v, want 1m", cfg.Search.CellTimeout)
	}
	if cfg.Search.MaxAreaKm2 != 4 {
		t.Errorf("max area = %v, want 4", cfg.Search.MaxAreaKm2)
	}
	if cfg.Auth.InitialCredits != 10 {
		t.Errorf("initial credits = %d, want 10", cfg.Auth.InitialCredits)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PHARMACOVER_PLACES_API_KEY", "k-123")
	t.Setenv("PHARMACOVER_SEARCH_CONCURRENCY", "4")
	t.Setenv("PHARMACOVER_PLACES_PAGE_DELAY", "500ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("api")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Places.APIKey != "k-123" {
		t.Errorf("api key = %q", cfg.Places.APIKey)
	}
	if cfg.Search.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Search.Concurrency)
	}
	if cfg.Places.PageDelay != 500*time.Millisecond {
		t.Errorf("page delay = %v", cfg.Places.PageDelay)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("api")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Server.Port = 0
	cfg.Search.Concurrency = 0
	cfg.Places.MaxResultCount = 50

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "search.concurrency", "places.max_result_count"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
