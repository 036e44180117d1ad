package handler

import (
	"encoding/json"
	"net/http"

	"github.com/txn2/table-masker/pkg/health"
)

const maxBodyBytes = 1 << 20

// NewMux returns the HTTP routes: provisioning plus liveness and readiness probes.
func NewMux(h *Handler, checker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/provision", h.ServeProvision)
	if checker != nil {
		mux.HandleFunc("GET /healthz", checker.LivenessHandler())
		mux.HandleFunc("GET /readyz", checker.ReadinessHandler())
	}
	return mux
}

// ServeProvision decodes a JSON object body and writes the Response with a
// matching HTTP status.
func (h *Handler) ServeProvision(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		writeJSON(w, Response{StatusCode: http.StatusBadRequest, Body: "Invalid JSON body"})
		return
	}

	writeJSON(w, h.Handle(r.Context(), payload))
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
