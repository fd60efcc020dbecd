package handlers

import (
	"encoding/json"
	"net/http"

	"finetune-orchestrator/core/estimator"
	"finetune-orchestrator/core/orchestrator"
)

// CostHandler handles cost estimation HTTP requests.
type CostHandler struct {
	orch *orchestrator.Orchestrator
}

// NewCostHandler creates a new cost handler.
func NewCostHandler(orch *orchestrator.Orchestrator) *CostHandler {
	return &CostHandler{orch: orch}
}

// EstimateRequest represents a cost estimation request.
type EstimateRequest struct {
	Model     string `json:"model"`
	Dataset   string `json:"dataset"`
	Hardware  string `json:"hardware"`
	Epochs    int    `json:"epochs"`
	BatchSize int    `json:"batch_size"`
}

// Estimate handles POST /api/costs/estimate. It returns the projected
// cost and duration without submitting anything.
func (h *CostHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Model == "" || req.Dataset == "" || req.Hardware == "" {
		http.Error(w, "model, dataset and hardware are required", http.StatusBadRequest)
		return
	}

	estimate := h.orch.EstimateCost(r.Context(), estimator.Request{
		Model:     req.Model,
		Dataset:   req.Dataset,
		Hardware:  req.Hardware,
		Epochs:    req.Epochs,
		BatchSize: req.BatchSize,
	})

	limit := h.orch.BudgetLimitUSD()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"estimate":         estimate,
		"budget_limit_usd": limit,
		"within_budget":    estimate.EstimatedCostUSD <= limit,
	})
}
