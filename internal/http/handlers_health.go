package httpx

import (
	"io"
	"net/http"
	"time"
)

const healthzResponse = `{"status":"ok"}`

// healthzHandler returns a simple 200 OK status for readiness/liveness checks.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthzResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// HealthHandlers serves the versioned health endpoint with uptime.
type HealthHandlers struct {
	Version   string
	StartedAt time.Time
}

type healthResponse struct {
	Status  string  `json:"status"`
	Version string  `json:"version"`
	Uptime  float64 `json:"uptime_seconds"`
}

// Health reports service status, version and uptime.
func (h *HealthHandlers) Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: h.Version,
		Uptime:  time.Since(h.StartedAt).Seconds(),
	})
}
