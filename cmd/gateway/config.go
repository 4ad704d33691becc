package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type config struct {
	listenAddr         string
	upstreamURL        string
	rateEnabled        bool
	rateAlgorithm      string
	rateRPS            float64
	rateBurst          int
	rateOccurrences    int
	rateWindow         time.Duration
	rateWaitTimeout    time.Duration
	rateIdleTTL        time.Duration
	rateKeyHeader      string
	trustXFF           bool
	retryAfter         time.Duration
	addHeaders         bool
	requestIDHeader    string
	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool

	metricsEnabled bool
	metricsPath    string

	logLevel  string
	logFormat string
}

const (
	algorithmWindow = "window"
	algorithmToken  = "token"
)

// fileConfig é o formato do CONFIG_FILE. Os valores do arquivo viram defaults;
// variáveis de ambiente sempre têm precedência.
type fileConfig struct {
	Listen   string `yaml:"listen"`
	Upstream string `yaml:"upstream"`
	Rate     struct {
		Enabled     *bool   `yaml:"enabled"`
		Algorithm   string  `yaml:"algorithm"`
		RPS         float64 `yaml:"rps"`
		Burst       int     `yaml:"burst"`
		Occurrences int     `yaml:"occurrences"`
		Window      string  `yaml:"window"`
		WaitTimeout string  `yaml:"wait_timeout"`
		IdleTTL     string  `yaml:"idle_ttl"`
		KeyHeader   string  `yaml:"key_header"`
		TrustXFF    *bool   `yaml:"trust_xff"`
		RetryAfter  string  `yaml:"retry_after"`
		AddHeaders  *bool   `yaml:"add_headers"`
	} `yaml:"rate"`
	Concurrency struct {
		Max     *int   `yaml:"max"`
		Timeout string `yaml:"timeout"`
	} `yaml:"concurrency"`
	Stats struct {
		Enabled   *bool  `yaml:"enabled"`
		RedisAddr string `yaml:"redis_addr"`
		RedisDB   int    `yaml:"redis_db"`
		Prefix    string `yaml:"prefix"`
		TTL       string `yaml:"ttl"`
		Bucket    string `yaml:"bucket"`
		TrackKeys *bool  `yaml:"track_keys"`
	} `yaml:"stats"`
	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func loadFileConfig(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// achata no mesmo espaço de nomes das variáveis de ambiente
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	setBool := func(k string, v *bool) {
		if v != nil {
			out[k] = strconv.FormatBool(*v)
		}
	}
	setInt := func(k string, v int) {
		if v != 0 {
			out[k] = strconv.Itoa(v)
		}
	}

	set("LISTEN_ADDR", fc.Listen)
	set("UPSTREAM_URL", fc.Upstream)
	setBool("RATE_ENABLED", fc.Rate.Enabled)
	set("RATE_ALGORITHM", fc.Rate.Algorithm)
	if fc.Rate.RPS != 0 {
		out["RATE_RPS"] = strconv.FormatFloat(fc.Rate.RPS, 'f', -1, 64)
	}
	setInt("RATE_BURST", fc.Rate.Burst)
	setInt("RATE_OCCURRENCES", fc.Rate.Occurrences)
	set("RATE_WINDOW", fc.Rate.Window)
	set("RATE_WAIT_TIMEOUT", fc.Rate.WaitTimeout)
	set("RATE_GATE_IDLE_TTL", fc.Rate.IdleTTL)
	set("RATE_KEY_HEADER", fc.Rate.KeyHeader)
	setBool("TRUST_XFF", fc.Rate.TrustXFF)
	set("RETRY_AFTER", fc.Rate.RetryAfter)
	setBool("ADD_RATELIMIT_HEADERS", fc.Rate.AddHeaders)
	if fc.Concurrency.Max != nil {
		out["CONCURRENCY_MAX"] = strconv.Itoa(*fc.Concurrency.Max)
	}
	set("CONCURRENCY_TIMEOUT", fc.Concurrency.Timeout)
	setBool("RATE_STATS_ENABLED", fc.Stats.Enabled)
	set("RATE_STATS_REDIS_ADDR", fc.Stats.RedisAddr)
	setInt("RATE_STATS_REDIS_DB", fc.Stats.RedisDB)
	set("RATE_STATS_PREFIX", fc.Stats.Prefix)
	set("RATE_STATS_TTL", fc.Stats.TTL)
	set("RATE_STATS_BUCKET", fc.Stats.Bucket)
	setBool("RATE_STATS_TRACK_KEYS", fc.Stats.TrackKeys)
	setBool("METRICS_ENABLED", fc.Metrics.Enabled)
	set("METRICS_PATH", fc.Metrics.Path)
	set("LOG_LEVEL", fc.Log.Level)
	set("LOG_FORMAT", fc.Log.Format)
	return out, nil
}

// env resolve uma chave: ambiente primeiro, depois o arquivo de config.
type env struct {
	file map[string]string
}

func (e env) lookup(k string) (string, bool) {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v, true
	}
	v, ok := e.file[k]
	return v, ok && v != ""
}

func readConfig() (config, error) {
	e := env{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := loadFileConfig(path)
		if err != nil {
			return config{}, err
		}
		e.file = file
	}
	return e.read()
}

func (e env) read() (config, error) {
	cfg := config{}
	cfg.listenAddr = e.getDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = e.getDefault("UPSTREAM_URL", "")
	cfg.rateEnabled = e.getBoolDefault("RATE_ENABLED", true)
	cfg.rateAlgorithm = strings.ToLower(e.getDefault("RATE_ALGORITHM", algorithmWindow))
	cfg.rateRPS = e.getFloatDefault("RATE_RPS", 10)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02), o padrão 20 pode dar a impressão de que
	// o limiter não está funcionando, porque as primeiras ~20 passam.
	if burst, ok := e.getInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 20
		if e.isSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateOccurrences = e.getIntDefault("RATE_OCCURRENCES", 10)
	cfg.rateWindow = e.getDurationDefault("RATE_WINDOW", time.Second)
	cfg.rateWaitTimeout = e.getDurationDefault("RATE_WAIT_TIMEOUT", 0)
	cfg.rateIdleTTL = e.getDurationDefault("RATE_GATE_IDLE_TTL", 15*time.Minute)
	cfg.rateKeyHeader = e.getDefault("RATE_KEY_HEADER", "")
	cfg.trustXFF = e.getBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = e.getDurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = e.getBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.requestIDHeader = e.getDefault("REQUEST_ID_HEADER", "X-Request-ID")
	cfg.concurrencyMax = e.getIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = e.getDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.rateStatsEnabled = e.getBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedisAddr = e.getDefault("RATE_STATS_REDIS_ADDR", "")
	cfg.rateStatsRedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	cfg.rateStatsRedisDB = e.getIntDefault("RATE_STATS_REDIS_DB", 0)
	cfg.rateStatsPrefix = e.getDefault("RATE_STATS_PREFIX", "rategate:stats")
	cfg.rateStatsTTL = e.getDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = e.getDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = e.getBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.metricsEnabled = e.getBoolDefault("METRICS_ENABLED", true)
	cfg.metricsPath = e.getDefault("METRICS_PATH", "/metrics")

	cfg.logLevel = e.getDefault("LOG_LEVEL", "info")
	cfg.logFormat = e.getDefault("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (cfg config) validate() error {
	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.rateStatsRedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if cfg.upstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	switch cfg.rateAlgorithm {
	case algorithmToken:
		if cfg.rateRPS <= 0 {
			return errors.New("RATE_RPS must be > 0")
		}
		if cfg.rateBurst <= 0 {
			return errors.New("RATE_BURST must be > 0")
		}
	case algorithmWindow:
		if cfg.rateOccurrences <= 0 {
			return errors.New("RATE_OCCURRENCES must be > 0")
		}
		if cfg.rateWindow <= 0 {
			return errors.New("RATE_WINDOW must be > 0")
		}
	default:
		return fmt.Errorf("RATE_ALGORITHM must be %q or %q, got %q", algorithmWindow, algorithmToken, cfg.rateAlgorithm)
	}
	if cfg.rateWaitTimeout < 0 {
		return errors.New("RATE_WAIT_TIMEOUT must be >= 0")
	}
	if cfg.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

func (e env) getDefault(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e env) getIntDefault(k string, def int) int {
	if i, ok := e.getInt(k); ok {
		return i
	}
	return def
}

func (e env) getInt(k string) (int, bool) {
	v, ok := e.lookup(k)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func (e env) isSet(k string) bool {
	_, ok := e.lookup(k)
	return ok
}

func (e env) getFloatDefault(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (e env) getBoolDefault(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (e env) getDurationDefault(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
