package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rategate/middleware/ratelimit/domain"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("UPSTREAM_URL", "http://localhost:8081")

	cfg, err := readConfig()
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg.rateAlgorithm != algorithmWindow {
		t.Fatalf("expected window algorithm by default, got %q", cfg.rateAlgorithm)
	}
	if cfg.rateOccurrences != 10 || cfg.rateWindow != time.Second {
		t.Fatalf("unexpected window defaults: %d per %s", cfg.rateOccurrences, cfg.rateWindow)
	}
	if !cfg.metricsEnabled || cfg.metricsPath != "/metrics" {
		t.Fatalf("expected metrics on /metrics by default")
	}
}

func TestReadConfig_FileValuesWithEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
upstream: http://upstream:9000
rate:
  algorithm: window
  occurrences: 3
  window: 250ms
  wait_timeout: 100ms
  add_headers: true
concurrency:
  max: 0
log:
  level: debug
  format: text
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("UPSTREAM_URL", "")
	t.Setenv("RATE_OCCURRENCES", "7")

	cfg, err := readConfig()
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg.upstreamURL != "http://upstream:9000" {
		t.Fatalf("expected upstream from file, got %q", cfg.upstreamURL)
	}
	if cfg.rateOccurrences != 7 {
		t.Fatalf("expected env to override file occurrences, got %d", cfg.rateOccurrences)
	}
	if cfg.rateWindow != 250*time.Millisecond || cfg.rateWaitTimeout != 100*time.Millisecond {
		t.Fatalf("unexpected durations window=%s wait=%s", cfg.rateWindow, cfg.rateWaitTimeout)
	}
	if !cfg.addHeaders || cfg.concurrencyMax != 0 {
		t.Fatalf("expected add_headers=true and concurrency max=0, got %v/%d", cfg.addHeaders, cfg.concurrencyMax)
	}
	if cfg.logLevel != "debug" || cfg.logFormat != "text" {
		t.Fatalf("unexpected log config %q/%q", cfg.logLevel, cfg.logFormat)
	}
}

func TestReadConfig_InvalidFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfigFile(t, "rate: [not, a, map"))
	if _, err := readConfig(); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := readConfig(); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestConfigValidate(t *testing.T) {
	base := config{
		upstreamURL:     "http://x",
		rateAlgorithm:   algorithmWindow,
		rateOccurrences: 1,
		rateWindow:      time.Second,
		rateRPS:         1,
		rateBurst:       1,
	}
	if err := base.validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(c *config){
		"UPSTREAM_URL":          func(c *config) { c.upstreamURL = "" },
		"RATE_OCCURRENCES":      func(c *config) { c.rateOccurrences = 0 },
		"RATE_WINDOW":           func(c *config) { c.rateWindow = 0 },
		"RATE_ALGORITHM":        func(c *config) { c.rateAlgorithm = "leaky" },
		"RATE_RPS":              func(c *config) { c.rateAlgorithm = algorithmToken; c.rateRPS = 0 },
		"RATE_BURST":            func(c *config) { c.rateAlgorithm = algorithmToken; c.rateBurst = 0 },
		"RATE_WAIT_TIMEOUT":     func(c *config) { c.rateWaitTimeout = -time.Second },
		"CONCURRENCY_MAX":       func(c *config) { c.concurrencyMax = -1 },
		"RATE_STATS_REDIS_ADDR": func(c *config) { c.rateStatsEnabled = true },
	}
	for want, mutate := range cases {
		c := base
		mutate(&c)
		err := c.validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %s, got %v", want, err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

type recordingStats struct {
	events []domain.StatsEvent
	err    error
}

func (r *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMultiStats_FansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("redis down")
	a, b := &recordingStats{}, &recordingStats{err: boom}

	err := multiStats{a, b}.Record(context.Background(), domain.StatsEvent{Key: "k"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain %v, got %v", boom, err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected every store to receive the event")
	}
}
