package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-maplefresh/internal/common"
)

var draining atomic.Bool

// SetReady toggles readiness. Shutdown flips it off first so the load
// balancer drains the instance before connections close.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Checker pings the stores the API cannot serve without.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// Report is the readiness payload.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Live answers as long as the process can serve HTTP.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Ready probes postgres and redis in parallel and answers 503 when either
// fails or the instance is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "draining", Checks: map[string]string{}})
		return
	}
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "DEPENDENCIES_UNAVAILABLE", "dependencies unavailable", nil)
		return
	}

	probes := map[string]func(context.Context) error{
		"db": func(ctx context.Context) error {
			return h.Checker.PingDB(ctx, positive(h.DBTimeout, 500*time.Millisecond))
		},
		"redis": func(ctx context.Context) error {
			return h.Checker.PingRedis(ctx, positive(h.RedisTimeout, 300*time.Millisecond))
		},
	}
	report := Report{Status: "ok", Checks: make(map[string]string, len(probes))}
	var mu sync.Mutex
	var g errgroup.Group
	for name, probe := range probes {
		g.Go(func() error {
			result := "ok"
			if err := probe(r.Context()); err != nil {
				result = err.Error()
			}
			mu.Lock()
			report.Checks[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := http.StatusOK
	for _, result := range report.Checks {
		if result != "ok" {
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	common.JSON(w, status, report)
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
