package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// readyTimeout bounds each dependency check
const readyTimeout = 2 * time.Second

// ReadyResponse reports each dependency check
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// RunningImport is one in-flight import
type RunningImport struct {
	Fingerprint string    `json:"fingerprint"`
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at"`
}

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the liveness status of the process
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the chat record store and the lock backend
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse  "A dependency check failed"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := s.checks[name].Ping(ctx)
		cancel()
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get version
// @Description  Returns the running build version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleCapabilities godoc
// @Summary      Runtime capabilities
// @Description  Returns which media processors and AI services are available
// @Tags         Imports
// @Produce      json
// @Success      200  {object}  domain.Capabilities
// @Router       /capabilities [get]
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if s.runtime == nil {
		writeJSON(w, http.StatusOK, domain.Capabilities{})
		return
	}
	writeJSON(w, http.StatusOK, s.runtime.Snapshot())
}

// handleRunningImports godoc
// @Summary      List running imports
// @Description  Returns the imports this instance holds a fingerprint lock for
// @Tags         Imports
// @Produce      json
// @Success      200  {array}   RunningImport
// @Router       /imports/running [get]
func (s *Server) handleRunningImports(w http.ResponseWriter, r *http.Request) {
	out := []RunningImport{}
	if s.jobs != nil {
		for _, job := range s.jobs.Running() {
			out = append(out, RunningImport{
				Fingerprint: job.Fingerprint,
				State:       string(job.State),
				StartedAt:   job.StartedAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
