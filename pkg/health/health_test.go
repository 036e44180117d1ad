package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const (
	stateNameStarting = "starting"
	stateNameReady    = "ready"
	stateNameDraining = "draining"
	goroutineCount    = 100
)

func decode(t *testing.T, w *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestStateTransitions(t *testing.T) {
	hc := NewChecker(nil)
	if hc.State() != stateNameStarting || hc.IsReady() {
		t.Fatalf("initial state = %q, want %s", hc.State(), stateNameStarting)
	}
	hc.SetReady()
	if hc.State() != stateNameReady || !hc.IsReady() {
		t.Fatalf("after SetReady() = %q, want %s", hc.State(), stateNameReady)
	}
	hc.SetDraining()
	if hc.State() != stateNameDraining || hc.IsReady() {
		t.Fatalf("after SetDraining() = %q, want %s", hc.State(), stateNameDraining)
	}
}

func TestLivenessHandler(t *testing.T) {
	hc := NewChecker(nil)
	w := httptest.NewRecorder()
	hc.LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decode(t, w).Status; got != "ok" {
		t.Errorf("status body = %q, want ok", got)
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		ready    bool
		probeErr error
		wantCode int
		wantBody string
	}{
		{name: "starting", ready: false, wantCode: http.StatusServiceUnavailable, wantBody: stateNameStarting},
		{name: "ready", ready: true, wantCode: http.StatusOK, wantBody: stateNameReady},
		{name: "probe failure", ready: true, probeErr: errors.New("templates missing"), wantCode: http.StatusServiceUnavailable, wantBody: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewChecker(map[string]Probe{
				"templates": func(context.Context) error { return tt.probeErr },
			})
			if tt.ready {
				hc.SetReady()
			}

			w := httptest.NewRecorder()
			hc.ReadinessHandler()(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			resp := decode(t, w)
			if resp.Status != tt.wantBody {
				t.Errorf("status body = %q, want %q", resp.Status, tt.wantBody)
			}
			if tt.probeErr != nil && resp.Checks["templates"] != tt.probeErr.Error() {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	hc := NewChecker(nil)
	var wg sync.WaitGroup
	for i := range goroutineCount {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				hc.SetReady()
			} else {
				_ = hc.State()
			}
		}(i)
	}
	wg.Wait()
	if !hc.IsReady() {
		t.Error("IsReady() = false after concurrent SetReady calls")
	}
}
