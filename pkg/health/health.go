// Package health provides liveness and readiness handlers for the provisioning server.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

const probeTimeout = 2 * time.Second

// Probe checks a dependency the server needs before accepting requests.
type Probe func(ctx context.Context) error

// Checker tracks whether the server is accepting requests. Safe for concurrent use.
type Checker struct {
	state  atomic.Int32
	probes map[string]Probe
}

// NewChecker creates a Checker in the starting state. Every probe must pass
// for the readiness handler to report ready.
func NewChecker(probes map[string]Probe) *Checker {
	return &Checker{probes: probes}
}

// SetReady marks the server as accepting requests.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining marks the server as shutting down.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state name.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler always responds 200.
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, response{Status: "ok"})
	}
}

// ReadinessHandler responds 200 when ready and every probe passes, else 503.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, response{Status: c.State()})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		checks, ok := c.runProbes(ctx)
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, response{Status: "degraded", Checks: checks})
			return
		}
		writeJSON(w, http.StatusOK, response{Status: c.State(), Checks: checks})
	}
}

func (c *Checker) runProbes(ctx context.Context) (map[string]string, bool) {
	if len(c.probes) == 0 {
		return nil, true
	}
	checks := make(map[string]string, len(c.probes))
	ok := true
	for name, probe := range c.probes {
		if err := probe(ctx); err != nil {
			slog.Warn("readiness probe failed", "probe", name, "error", err)
			checks[name] = err.Error()
			ok = false
			continue
		}
		checks[name] = "ok"
	}
	return checks, ok
}

func writeJSON(w http.ResponseWriter, code int, v response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
