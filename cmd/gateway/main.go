package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rategate/middleware/ratelimit"
	"rategate/middleware/ratelimit/domain"
	"rategate/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.logLevel, cfg.logFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return errors.New("invalid UPSTREAM_URL: " + err.Error())
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var metrics *infra.GateMetrics
	if cfg.metricsEnabled {
		metrics = infra.NewGateMetrics(prometheus.DefaultRegisterer)
	}

	store, closeStore, err := newLimiterStore(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var stats []domain.StatsStore
	if metrics != nil {
		stats = append(stats, metrics)
	}
	if cfg.rateStatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.rateStatsRedisAddr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			return errors.New("redis stats ping error: " + err.Error())
		}

		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		))
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:             cfg.concurrencyMax,
		RejectStatus:    http.StatusServiceUnavailable,
		AcquireTimeout:  cfg.concurrencyTimeout,
		RetryAfter:      cfg.retryAfter,
		AddHeaders:      cfg.addHeaders,
		Stats:           multiStats(stats),
		KeyFn:           ratelimit.DefaultKeyFunc(cfg.rateKeyHeader, cfg.trustXFF),
		RequestIDHeader: cfg.requestIDHeader,
		Logger:          logger,
	})(h)
	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Stats:               multiStats(stats),
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			WaitTimeout:         cfg.rateWaitTimeout,
			AddRateLimitHeaders: cfg.addHeaders,
			RequestIDHeader:     cfg.requestIDHeader,
			Logger:              logger,
		})(h)
	}

	if cfg.metricsEnabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.metricsPath, promhttp.Handler())
		mux.Handle("/", h)
		h = mux
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30*time.Second + cfg.rateWaitTimeout,
		IdleTimeout:       90 * time.Second,
	}

	// o store só fecha (defer acima) depois que o Shutdown drenou as requisições
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("gateway listening", slog.String("addr", cfg.listenAddr), slog.String("upstream", target.String()))
	logger.Info("rate",
		slog.Bool("enabled", cfg.rateEnabled),
		slog.String("algorithm", cfg.rateAlgorithm),
		slog.Int("occurrences", cfg.rateOccurrences),
		slog.Duration("window", cfg.rateWindow),
		slog.Duration("wait_timeout", cfg.rateWaitTimeout),
		slog.Float64("rps", cfg.rateRPS),
		slog.Int("burst", cfg.rateBurst),
		slog.String("key_header", cfg.rateKeyHeader),
		slog.Bool("trust_xff", cfg.trustXFF),
	)
	logger.Info("rate-stats",
		slog.Bool("enabled", cfg.rateStatsEnabled),
		slog.String("redis_addr", cfg.rateStatsRedisAddr),
		slog.String("bucket", cfg.rateStatsBucket),
		slog.Duration("ttl", cfg.rateStatsTTL),
		slog.Bool("track_keys", cfg.rateStatsTrackKeys),
		slog.Bool("metrics", cfg.metricsEnabled),
	)
	logger.Info("concurrency", slog.Int("max", cfg.concurrencyMax), slog.Duration("acquire_timeout", cfg.concurrencyTimeout))

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

// newLimiterStore monta a estratégia escolhida em RATE_ALGORITHM e já liga o janitor.
func newLimiterStore(ctx context.Context, cfg config, metrics *infra.GateMetrics, logger *slog.Logger) (domain.LimiterStore, func(), error) {
	if cfg.rateAlgorithm == algorithmToken {
		store := infra.NewStore(cfg.rateRPS, cfg.rateBurst, infra.WithIdleTTL(cfg.rateIdleTTL))
		store.StartJanitor(ctx)
		return store, func() {}, nil
	}

	gateOpts := []infra.GateOption{infra.WithGateLogger(logger)}
	if metrics != nil {
		gateOpts = append(gateOpts, infra.WithGateObserver(metrics))
	}
	store, err := infra.NewGateStore(cfg.rateOccurrences, cfg.rateWindow,
		infra.WithIdleTTL(cfg.rateIdleTTL),
		infra.WithGateOptions(gateOpts...),
	)
	if err != nil {
		return nil, nil, err
	}
	store.StartJanitor(ctx)
	return store, func() { _ = store.Close() }, nil
}
