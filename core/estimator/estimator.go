// Package estimator produces deterministic cost and time quotes for training
// requests. The same estimate gates submission against the budget ceiling and
// is returned to callers as a quote.
package estimator

import (
	"context"
	"math"
	"strings"

	"github.com/phuslu/log"

	"finetune-orchestrator/core/models"
)

// DefaultDatasetSize is used when the size lookup fails or knows nothing
// about the dataset.
const DefaultDatasetSize = 10000

// DatasetSizer resolves a dataset identifier to an approximate example count.
type DatasetSizer interface {
	DatasetSize(ctx context.Context, dataset string) (int, error)
}

// PricingTable carries per-hardware-class rates. Unknown hardware classes fall
// back to the baseline values.
type PricingTable struct {
	HourlyUSD          map[string]float64
	StepsPerSecond     map[string]float64
	BaselineHourlyUSD  float64
	BaselineStepsPerSc float64
}

// DefaultPricing returns the built-in hardware pricing table.
func DefaultPricing() PricingTable {
	return PricingTable{
		HourlyUSD: map[string]float64{
			"t4-small":   0.75,
			"t4-medium":  1.00,
			"a10g-small": 1.50,
			"a10g-large": 2.50,
			"a100-large": 5.00,
		},
		StepsPerSecond: map[string]float64{
			"t4-small":   2.0,
			"t4-medium":  2.5,
			"a10g-small": 3.0,
			"a10g-large": 4.0,
			"a100-large": 6.0,
		},
		BaselineHourlyUSD:  1.0,
		BaselineStepsPerSc: 2.0,
	}
}

// Estimator computes quotes from a fixed pricing table and a dataset size
// lookup. Identical inputs always produce identical output.
type Estimator struct {
	pricing PricingTable
	sizer   DatasetSizer
}

// New creates an estimator. sizer may be nil, in which case only the built-in
// dataset defaults apply.
func New(pricing PricingTable, sizer DatasetSizer) *Estimator {
	return &Estimator{pricing: pricing, sizer: sizer}
}

// HourlyRate returns the hourly price for a hardware class, falling back to
// the baseline for unknown classes.
func (e *Estimator) HourlyRate(hardware string) float64 {
	if rate, ok := e.pricing.HourlyUSD[hardware]; ok {
		return rate
	}
	return e.pricing.BaselineHourlyUSD
}

// Request carries the inputs to a quote.
type Request struct {
	Model     string
	Dataset   string
	Hardware  string
	Epochs    int
	BatchSize int
}

// Estimate computes the time and cost quote for a request. A failed dataset
// size lookup falls back to a fixed default instead of failing the estimate.
func (e *Estimator) Estimate(ctx context.Context, req Request) *models.CostEstimate {
	epochs := req.Epochs
	if epochs <= 0 {
		epochs = 3
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = 8
	}

	hourlyRate, ok := e.pricing.HourlyUSD[req.Hardware]
	if !ok {
		hourlyRate = e.pricing.BaselineHourlyUSD
	}
	baseRate, ok := e.pricing.StepsPerSecond[req.Hardware]
	if !ok {
		baseRate = e.pricing.BaselineStepsPerSc
	}

	// Larger models step slower on the same hardware. This is a coarse
	// heuristic keyed off size tokens in the model name, not a measurement.
	adjustedRate := baseRate * modelSizeMultiplier(req.Model)

	datasetSize := e.datasetSize(ctx, req.Dataset)

	totalSteps := float64(datasetSize) * float64(epochs) / float64(batchSize)
	estimatedSeconds := totalSteps / adjustedRate
	estimatedMinutes := estimatedSeconds / 60
	estimatedHours := estimatedMinutes / 60

	estimatedCost := hourlyRate * estimatedHours

	return &models.CostEstimate{
		EstimatedTimeMinutes: round1(estimatedMinutes),
		EstimatedTimeHours:   round2(estimatedHours),
		EstimatedCostUSD:     round2(estimatedCost),
		HourlyRateUSD:        hourlyRate,
		Hardware:             req.Hardware,
		ModelSize:            modelSizeLabel(req.Model),
		DatasetSize:          datasetSize,
		Epochs:               epochs,
		BatchSize:            batchSize,
		Breakdown: models.EstimateBreakdown{
			TotalSteps:          int(totalSteps),
			StepsPerSecond:      round2(adjustedRate),
			TimePerEpochMinutes: round1(estimatedMinutes / float64(epochs)),
		},
	}
}

func (e *Estimator) datasetSize(ctx context.Context, dataset string) int {
	if e.sizer != nil {
		size, err := e.sizer.DatasetSize(ctx, dataset)
		if err == nil && size > 0 {
			return size
		}
		if err != nil {
			log.Warn().Str("dataset", dataset).Err(err).Msg("Dataset size lookup failed, using default")
		}
	}
	if size, ok := knownDatasetSizes[dataset]; ok {
		return size
	}
	return DefaultDatasetSize
}

// knownDatasetSizes holds example counts for common public datasets, used when
// no live lookup is available.
var knownDatasetSizes = map[string]int{
	"open-r1/codeforces-cots": 5000,
	"openai/gsm8k":            7500,
	"Anthropic/hh-rlhf":       160000,
}

func modelSizeMultiplier(model string) float64 {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "7b"):
		return 0.3
	case strings.Contains(name, "3b"):
		return 0.5
	case strings.Contains(name, "1.5b"):
		return 0.7
	}
	return 1.0
}

func modelSizeLabel(model string) string {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "0.5b"), strings.Contains(name, "500m"):
		return "0.5B"
	case strings.Contains(name, "1.5b"), strings.Contains(name, "1.7b"):
		return "1.5B"
	case strings.Contains(name, "13b"):
		return "13B"
	case strings.Contains(name, "7b"):
		return "7B"
	case strings.Contains(name, "3b"):
		return "3B"
	}
	return "unknown"
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
