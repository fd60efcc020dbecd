package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"finetune-orchestrator/api/rest/handlers"
	"finetune-orchestrator/core/monitoring"
	"finetune-orchestrator/core/orchestrator"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, orch *orchestrator.Orchestrator, streamer *monitoring.Streamer) {
	jobHandler := handlers.NewJobHandler(orch, streamer)
	costHandler := handlers.NewCostHandler(orch)

	api := r.PathPrefix("/api").Subrouter()

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.CreateJob).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.DeleteJob).Methods("DELETE")
	api.HandleFunc("/jobs/{id}/cancel", jobHandler.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")
	api.HandleFunc("/jobs/{id}/stream", jobHandler.StreamJob).Methods("GET")

	// Cost endpoints
	api.HandleFunc("/costs/estimate", costHandler.Estimate).Methods("POST")
	api.HandleFunc("/stats", jobHandler.Stats).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
}
