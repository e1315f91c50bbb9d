package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const healthProbeTimeout = 5 * time.Second

// HealthResult is the outcome of probing one endpoint.
type HealthResult struct {
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string         `json:"status"`
	Endpoints []HealthResult `json:"endpoints"`
}

// CheckHealth probes every endpoint and reports whether all of them are healthy.
func CheckHealth(ctx context.Context, probes []HealthChecker) ([]HealthResult, bool) {
	results := make([]HealthResult, len(probes))
	healthy := true
	for i, p := range probes {
		pctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		err := p.Health(pctx)
		cancel()

		results[i] = HealthResult{Endpoint: p.Name(), Status: "ok"}
		if err != nil {
			results[i].Status = "unavailable"
			results[i].Error = err.Error()
			healthy = false
		}
	}
	return results, healthy
}

// HandleHealth reports the health of the upstream endpoints as JSON. The status code is 200 if all
// of them answered and 503 otherwise.
func (m Main) HandleHealth(w http.ResponseWriter, r *http.Request) {
	results, healthy := CheckHealth(r.Context(), m.probes)

	res := healthResponse{Status: "ok", Endpoints: results}
	code := http.StatusOK
	if !healthy {
		res.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		m.logger.Error("Failed to encode health response", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleTranscript lists the recorded turns as JSON.
func (m Main) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if m.transcript == nil {
		http.NotFound(w, r)
		return
	}

	turns, err := m.transcript.Turns(r.Context())
	if err != nil {
		m.logger.Error("Failed to list turns", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(turns); err != nil {
		m.logger.Error("Failed to encode transcript", slog.String(errLoggerKey, err.Error()))
	}
}
