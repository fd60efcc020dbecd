package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"finetune-orchestrator/core/models"
	"finetune-orchestrator/core/monitoring"
	"finetune-orchestrator/core/orchestrator"
	"finetune-orchestrator/core/repository"
)

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	orch     *orchestrator.Orchestrator
	streamer *monitoring.Streamer
}

// NewJobHandler creates a new job handler.
func NewJobHandler(orch *orchestrator.Orchestrator, streamer *monitoring.Streamer) *JobHandler {
	return &JobHandler{orch: orch, streamer: streamer}
}

// CreateJobRequest represents the request to create a training job.
type CreateJobRequest struct {
	Model    string            `json:"model"`
	Dataset  string            `json:"dataset"`
	Method   string            `json:"method"`
	Hardware string            `json:"hardware"`
	Config   map[string]string `json:"config"`
}

// CreateJob handles POST /api/jobs.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.orch.CreateJob(r.Context(), orchestrator.CreateRequest{
		Model:    req.Model,
		Dataset:  req.Dataset,
		Method:   models.TrainingMethod(req.Method),
		Hardware: req.Hardware,
		Config:   req.Config,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Rejected {
		// A budget rejection is a normal outcome; the body carries the
		// estimate and ceiling for a specific message.
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	report, err := h.orch.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListJobs handles GET /api/jobs.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	limit := 10
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		fmt.Sscanf(limitParam, "%d", &limit)
	}

	jobs, err := h.orch.ListJobs(r.Context(), statusFilter, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"count":  len(jobs),
		"filter": statusFilter,
		"limit":  limit,
	})
}

// CancelJob handles POST /api/jobs/{id}/cancel.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := h.orch.CancelJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteJob handles DELETE /api/jobs/{id}.
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.orch.DeleteJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "deleted"})
}

// GetJobEvents handles GET /api/jobs/{id}/events.
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	events, err := h.orch.JobEvents(r.Context(), id, 100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"job_id": id, "events": events})
}

// StreamJob handles GET /api/jobs/{id}/stream as server-sent events. The
// stream ends when the job reaches a terminal status or the client
// disconnects.
func (h *JobHandler) StreamJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for snap := range h.streamer.Stream(r.Context(), id) {
		payload := map[string]interface{}{
			"job_id": snap.JobID,
			"at":     snap.At,
		}
		if snap.Report != nil {
			payload["report"] = snap.Report
		}
		if snap.Err != nil {
			payload["error"] = snap.Err.Error()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// Stats handles GET /api/stats.
func (h *JobHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var vErr *orchestrator.ValidationError
	var callErr *orchestrator.BackendCallError

	switch {
	case errors.As(err, &vErr):
		http.Error(w, vErr.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
	case errors.As(err, &callErr):
		http.Error(w, callErr.Error(), http.StatusBadGateway)
	case errors.Is(err, orchestrator.ErrNoBackendAvailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
