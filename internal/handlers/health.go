package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wantinglittle/patches/internal/platform/httpx"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	healthStatusError    = "error"

	defaultReadinessTimeout = 3 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck probes one dependency.
type ReadinessCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// HealthHandlers serves /healthz and /readyz.
type HealthHandlers struct {
	build  BuildInfo
	checks []ReadinessCheck
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessChecks appends dependency probes run by /readyz.
func WithReadinessChecks(checks ...ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		h.checks = append(h.checks, checks...)
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version,omitempty"`
	CommitSHA   string                 `json:"commitSha,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	Uptime      string                 `json:"uptime"`
	Timestamp   string                 `json:"timestamp"`
	Checks      map[string]checkResult `json:"checks,omitempty"`
	Details     []string               `json:"details,omitempty"`
}

type checkResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Healthz reports liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	httpx.WriteJSON(w, http.StatusOK, h.baseResponse(healthStatusOK, now))
}

// Readyz runs every readiness check concurrently and answers 503 unless all pass.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	results := h.collect(ctx)

	status := healthStatusOK
	var details []string
	for name, res := range results {
		if res.Status == healthStatusOK {
			continue
		}
		if res.Status == healthStatusError || status == healthStatusOK {
			status = res.Status
		}
		details = append(details, fmt.Sprintf("%s: %s", name, res.Error))
	}
	sort.Strings(details)

	payload := h.baseResponse(status, h.clock())
	payload.Checks = results
	payload.Details = details

	code := http.StatusOK
	if status != healthStatusOK {
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, payload)
}

func (h *HealthHandlers) baseResponse(status string, now time.Time) healthResponse {
	return healthResponse{
		Status:      status,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
}

func (h *HealthHandlers) collect(ctx context.Context) map[string]checkResult {
	results := make(map[string]checkResult, len(h.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, check := range h.checks {
		name := strings.TrimSpace(check.Name)
		if name == "" || check.Check == nil {
			continue
		}
		wg.Add(1)
		go func(check ReadinessCheck) {
			defer wg.Done()

			timeout := check.Timeout
			if timeout <= 0 {
				timeout = defaultReadinessTimeout
			}
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := check.Check(checkCtx)
			res := checkResult{Status: healthStatusOK, LatencyMS: time.Since(start).Milliseconds()}
			switch {
			case err == nil:
			case checkCtx.Err() != nil:
				res.Status = healthStatusError
				res.Error = checkCtx.Err().Error()
			default:
				res.Status = healthStatusDegraded
				res.Error = err.Error()
			}

			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(check)
	}
	wg.Wait()
	return results
}
