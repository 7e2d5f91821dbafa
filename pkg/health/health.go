// Package health serves liveness and readiness probes.
//
// Every check is polled in the background. A check flips to failing only
// after FailureThreshold consecutive errors and back to passing after
// SuccessThreshold consecutive successes, so a single slow ping does not pull
// an instance out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check belongs to.
type Kind int

const (
	// Liveness checks failing means the process should be restarted.
	Liveness Kind = iota
	// Readiness checks failing means the instance should not get traffic.
	Readiness
)

// Check describes one registered check.
type Check struct {
	Name    string
	Timeout time.Duration
	Func    CheckFunc
	// Zero thresholds default to 3 failures and 1 success.
	FailureThreshold int
	SuccessThreshold int
}

type probe struct {
	Check

	mu       sync.Mutex
	passing  bool
	lastErr  error
	failures int
	passes   int
}

func newProbe(c Check) *probe {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	return &probe{Check: c, passing: true}
}

func (p *probe) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	err := p.Func(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.passes = 0
		p.failures++
		if p.failures >= p.FailureThreshold {
			p.passing = false
		}
		return
	}
	p.failures = 0
	p.passes++
	if p.passes >= p.SuccessThreshold {
		p.passing = true
	}
}

func (p *probe) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passing, p.lastErr
}

// Health owns the registered checks and the manual readiness flag.
type Health struct {
	ready  atomic.Bool
	mu     sync.RWMutex
	probes map[Kind][]*probe
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{probes: make(map[Kind][]*probe)}
}

// Register adds a check. Checks start out passing.
func (h *Health) Register(kind Kind, c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[kind] = append(h.probes[kind], newProbe(c))
}

// AddLivenessCheck registers a liveness check with default thresholds.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Register(Liveness, Check{Name: name, Timeout: timeout, Func: fn})
}

// AddReadinessCheck registers a readiness check with default thresholds.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Register(Readiness, Check{Name: name, Timeout: timeout, Func: fn})
}

// SetReady toggles the manual readiness flag. Services set it once wiring is
// done and clear it at the start of graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Run polls every check at interval until ctx is done. It always returns nil
// after cancellation, so it can run inside an errgroup next to the server.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range h.snapshot(Liveness, Readiness) {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.poll(ctx)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// IsReady reports the manual flag combined with all readiness checks.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return len(failures(h.snapshot(Readiness))) == 0
}

func (h *Health) snapshot(kinds ...Kind) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*probe
	for _, k := range kinds {
		out = append(out, h.probes[k]...)
	}
	return out
}

func failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		ok, err := p.state()
		if ok {
			continue
		}
		msg := "check is unhealthy"
		if err != nil {
			msg = err.Error()
		}
		out[p.Name] = msg
	}
	return out
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, failures(h.snapshot(Liveness)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(Readiness))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	write(w, failed)
}

func write(w http.ResponseWriter, failed map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	r := report{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		r = report{Status: "unhealthy", Checks: failed}
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(r)
}
