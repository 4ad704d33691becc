package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"rategate/middleware/ratelimit/application"
	"rategate/middleware/ratelimit/domain"

	"github.com/google/uuid"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool

	// WaitTimeout > 0 faz a requisição esperar por uma vaga no gate até esse
	// prazo antes de ser rejeitada.
	WaitTimeout time.Duration

	// RequestIDHeader é lido (ou gerado com uuid) para correlacionar logs e stats.
	// Vazio usa "X-Request-ID".
	RequestIDHeader string

	Logger *slog.Logger
}

// tokenBucketInfo é exposto pelo infra.Store (x/time/rate).
type tokenBucketInfo interface {
	RPS() float64
	Burst() int
}

// windowInfo é exposto pelo infra.GateStore (janela deslizante).
type windowInfo interface {
	Occurrences() int
	Window() time.Duration
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

const defaultRequestIDHeader = "X-Request-ID"

// stampRequestID reaproveita o id que veio do cliente/proxy (ou de um
// middleware anterior) e gera um uuid quando não houver. O id vai na resposta
// e na requisição, para o upstream receber o mesmo valor.
func stampRequestID(w http.ResponseWriter, r *http.Request, header string) string {
	id := strings.TrimSpace(r.Header.Get(header))
	if id == "" {
		id = uuid.NewString()
		r.Header.Set(header, id)
	}
	w.Header().Set(header, id)
	return id
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.RequestIDHeader == "" {
		opts.RequestIDHeader = defaultRequestIDHeader
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	svc := application.Service{
		Store:       opts.Store,
		RetryAfter:  opts.RetryAfter,
		WaitTimeout: opts.WaitTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			reqID := stampRequestID(w, r, opts.RequestIDHeader)

			if opts.AddRateLimitHeaders {
				setRateLimitHeaders(w.Header(), key, opts.Store)
			}

			start := time.Now()
			dec := svc.Decide(r.Context(), domain.Key(key))
			waited := time.Since(start)

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:       domain.Key(key),
					Allowed:   dec.Allowed,
					Outcome:   outcome(dec),
					RequestID: reqID,
					Method:    r.Method,
					Path:      r.URL.Path,
					Waited:    waited,
					At:        time.Now(),
				})
			}
			if !dec.Allowed {
				opts.Logger.Debug("rate limit rejected request",
					slog.String("key", key),
					slog.String("request_id", reqID),
					slog.String("reason", dec.Reason),
					slog.Duration("retry_after", dec.RetryAfter),
				)
				w.Header().Set("Retry-After", formatRetryAfter(dec.RetryAfter))
				status := opts.RejectStatus
				if dec.Reason == domain.ReasonDisposed {
					status = http.StatusServiceUnavailable
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, key string, store domain.LimiterStore) {
	h.Set("X-RateLimit-Key", key)
	if ti, ok := store.(tokenBucketInfo); ok {
		h.Set("X-RateLimit-RPS", formatFloat(ti.RPS()))
		h.Set("X-RateLimit-Burst", formatInt(ti.Burst()))
	}
	if wi, ok := store.(windowInfo); ok {
		h.Set("X-RateLimit-Limit", formatInt(wi.Occurrences()))
		h.Set("X-RateLimit-Window", formatMillis(wi.Window()))
	}
}

func outcome(dec domain.Decision) domain.Outcome {
	switch {
	case dec.Allowed:
		return domain.OutcomeAllowed
	case dec.Reason == domain.ReasonDisposed:
		return domain.OutcomeDisposed
	default:
		return domain.OutcomeDenied
	}
}
