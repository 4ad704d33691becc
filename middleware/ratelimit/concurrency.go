package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"rategate/middleware/ratelimit/application"
	"rategate/middleware/ratelimit/domain"
	"rategate/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter > 0 vai no header Retry-After das rejeições.
	RetryAfter time.Duration
	// AddHeaders expõe X-Concurrency-Available na resposta.
	AddHeaders bool

	// Stats recebe só as rejeições (OutcomeSaturated); as admissões já são
	// contadas pelo Middleware de rate limit.
	Stats           domain.StatsStore
	KeyFn           KeyFunc
	RequestIDHeader string
	Logger          *slog.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc("", false)
	}
	if opts.RequestIDHeader == "" {
		opts.RequestIDHeader = defaultRequestIDHeader
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
		RetryAfter:     opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := stampRequestID(w, r, opts.RequestIDHeader)

			start := time.Now()
			release, dec := svc.Acquire(r.Context())
			if !dec.Allowed {
				rejectConcurrent(w, r, opts, dec, reqID, time.Since(start))
				return
			}
			defer release()

			if opts.AddHeaders {
				w.Header().Set("X-Concurrency-Available", formatInt(svc.Available()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectConcurrent(w http.ResponseWriter, r *http.Request, opts ConcurrencyOptions, dec domain.Decision, reqID string, waited time.Duration) {
	key := opts.KeyFn(r)
	opts.Logger.Debug("concurrency limit rejected request",
		slog.String("key", key),
		slog.String("request_id", reqID),
		slog.String("reason", dec.Reason),
		slog.Duration("waited", waited),
	)

	// cliente já foi embora: não há a quem responder nem o que contar
	if dec.Reason == domain.ReasonCanceled {
		return
	}

	if opts.Stats != nil {
		_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
			Key:       domain.Key(key),
			Outcome:   domain.OutcomeSaturated,
			RequestID: reqID,
			Method:    r.Method,
			Path:      r.URL.Path,
			Waited:    waited,
			At:        time.Now(),
		})
	}
	if dec.RetryAfter > 0 {
		w.Header().Set("Retry-After", formatRetryAfter(dec.RetryAfter))
	}
	http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
}
