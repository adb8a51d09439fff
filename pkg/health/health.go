// Package health serves liveness and readiness probes.
//
// Every registered check runs on its own ticker. A check turns unhealthy
// after failAfter consecutive failures and healthy again after recoverAfter
// consecutive successes, so a single slow ping does not flap the probe.
package health

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind tells which probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

const (
	failAfter    = 3
	recoverAfter = 1
)

type probe struct {
	name    string
	kind    Kind
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Owned by the probe goroutine.
	fails int
	oks   int
}

func (p *probe) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// run executes the check once. It must not be called concurrently for the
// same probe.
func (p *probe) run(ctx context.Context, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= failAfter && p.healthy.Swap(false) {
			lg.Warn("Health check failing",
				zap.String("check", p.name),
				zap.Stringer("kind", p.kind),
				zap.Error(err),
			)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= recoverAfter && !p.healthy.Swap(true) {
		lg.Info("Health check recovered", zap.String("check", p.name), zap.Stringer("kind", p.kind))
	}
}

// Health tracks the checks of one process.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New creates a Health that is not ready until SetReady(true).
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// AddLivenessCheck registers a check of the process itself.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(Liveness, name, timeout, check)
}

// AddReadinessCheck registers a check of a dependency needed to serve
// traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(Readiness, name, timeout, check)
}

func (h *Health) add(kind Kind, name string, timeout time.Duration, check CheckFunc) {
	p := &probe{name: name, kind: kind, timeout: timeout, check: check}
	p.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, p)
}

func (h *Health) snapshot(kind Kind) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*probe
	for _, p := range h.probes {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *probe) int { return strings.Compare(a.name, b.name) })
	return out
}

// Start runs every registered check now and then at each interval until
// ctx is done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	for _, p := range probes {
		go h.loop(ctx, p, interval)
	}
}

func (h *Health) loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.run(ctx, h.lg)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the check goroutines. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady marks the process as accepting traffic or draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the process is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshot(Readiness) {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, "", h.snapshot(Liveness))
}

// ReadyEndpoint serves /readyz. A process that is not marked ready reports
// "draining" regardless of its checks.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	var override string
	if !h.ready.Load() {
		override = "draining"
	}
	writeReport(w, override, h.snapshot(Readiness))
}

// writeReport responds 200 {"status":"ok","checks":{...}} when every probe
// is healthy and 503 otherwise. Each check maps to "ok" or its last error.
func writeReport(w http.ResponseWriter, override string, probes []*probe) {
	status := "ok"
	for _, p := range probes {
		if !p.healthy.Load() {
			status = "unhealthy"
			break
		}
	}
	if override != "" {
		status = override
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	if len(probes) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		for _, p := range probes {
			e.FieldStart(p.name)
			switch err := p.err(); {
			case p.healthy.Load():
				e.Str("ok")
			case err != nil:
				e.Str(err.Error())
			default:
				e.Str("unhealthy")
			}
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
