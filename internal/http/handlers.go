package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"kasku/internal/core"
	"kasku/internal/log"
	"kasku/internal/services"
	"kasku/internal/storage"
)

// callerFrom builds the caller identity from the gateway headers. The
// service trusts its reverse proxy to authenticate and stamp these.
func callerFrom(r *http.Request) core.Caller {
	var caller core.Caller
	if v := r.Header.Get("X-User-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			caller.UserID = id
		}
	}
	if v := r.Header.Get("X-Privileged"); v != "" {
		caller.Privileged, _ = strconv.ParseBool(v)
	}
	return caller
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", log.FieldError, err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleListCharts returns the chart summaries visible to the caller.
func (s *Server) handleListCharts(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.charts.List(r.Context(), callerFrom(r))
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list charts",
			log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list charts")
		return
	}
	if summaries == nil {
		summaries = []storage.SpecSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleSaveChart upserts one chart spec. The path id wins over any id
// in the body.
func (s *Server) handleSaveChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "chart id is required")
		return
	}

	body := http.MaxBytesReader(w, r.Body, 64<<10)
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	spec, err := core.ParseSpec(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec.ID = id

	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.charts.Save(r.Context(), spec, callerFrom(r)); err != nil {
		if errors.Is(err, services.ErrNotOwner) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "saved"})
}

// handleChartData produces the data payload of a saved chart. Failures
// terminate in the payload message, so the status is always 200.
func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "chart id is required")
		return
	}

	payload := s.charts.ChartData(r.Context(), id, callerFrom(r))
	writeJSON(w, http.StatusOK, payload)
}

// handleChartPreview runs an unsaved spec and returns its payload.
func (s *Server) handleChartPreview(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 64<<10)
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	spec, err := core.ParseSpec(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if spec.ID == "" {
		spec.ID = "preview"
	}

	payload := s.charts.Preview(r.Context(), spec, callerFrom(r))
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz verifies the backing store answers before reporting
// ready.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "store unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
