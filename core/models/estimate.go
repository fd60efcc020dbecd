package models

// CostEstimate is the quote produced for a single training request. It is
// recomputed on demand and never cached; the copy frozen onto a JobRecord at
// submission is the one the budget gate approved.
type CostEstimate struct {
	EstimatedTimeMinutes float64           `json:"estimated_time_minutes"`
	EstimatedTimeHours   float64           `json:"estimated_time_hours"`
	EstimatedCostUSD     float64           `json:"estimated_cost_usd"`
	HourlyRateUSD        float64           `json:"hourly_rate_usd"`
	Hardware             string            `json:"hardware"`
	ModelSize            string            `json:"model_size"`
	DatasetSize          int               `json:"dataset_size"`
	Epochs               int               `json:"epochs"`
	BatchSize            int               `json:"batch_size"`
	Breakdown            EstimateBreakdown `json:"breakdown"`
}

// EstimateBreakdown explains how an estimate was derived.
type EstimateBreakdown struct {
	TotalSteps          int     `json:"total_steps"`
	StepsPerSecond      float64 `json:"steps_per_second"`
	TimePerEpochMinutes float64 `json:"time_per_epoch_minutes"`
}
