package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// minSampleForSignificance gates the z-test: below this the normal
// approximation is unreliable and the p-value is forced to 1.
const minSampleForSignificance = 30

type VariantResult struct {
	VariantID               uuid.UUID  `json:"variant_id"`
	VariantName             string     `json:"variant_name"`
	IsControl               bool       `json:"is_control"`
	SampleSize              int64      `json:"sample_size"`
	Conversions             int64      `json:"conversions"`
	ConversionRate          float64    `json:"conversion_rate"`
	TotalValue              float64    `json:"total_value"`
	ConfidenceInterval      [2]float64 `json:"confidence_interval"`
	PValue                  float64    `json:"p_value"`
	StatisticalSignificance bool       `json:"statistical_significance"`
	// Uplift is the relative percentage change in conversion rate against
	// the control (first) variant; 0 for the control itself and whenever
	// the control has no conversions.
	Uplift float64 `json:"uplift"`
}

// GetResults recomputes per-variant statistics from the current participant
// and event records. Nothing is cached across calls.
func (e *ExperimentEngine) GetResults(ctx context.Context, experimentID uuid.UUID) ([]VariantResult, error) {
	experiment, err := e.experimentRepo.GetByID(ctx, nil, experimentID)
	if err != nil {
		return nil, err
	}
	if len(experiment.Variants) == 0 {
		return nil, fmt.Errorf("experiment %s has no variants", experimentID)
	}

	metrics := experiment.Metrics.Data()
	settings := experiment.Settings.Data()
	confidence := settings.ConfidenceLevel
	if confidence == 0 {
		confidence = defaultConfidence
	}

	var (
		sampleSizes map[uuid.UUID]int64
		converters  map[uuid.UUID]int64
		totalValues map[uuid.UUID]float64
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		sampleSizes, err = e.participantRepo.CountByVariant(groupCtx, nil, experimentID)
		return err
	})
	group.Go(func() error {
		var err error
		converters, err = e.eventRepo.CountConvertersByVariant(groupCtx, nil, experimentID, metrics.Primary)
		return err
	})
	group.Go(func() error {
		var err error
		totalValues, err = e.eventRepo.SumValueByVariant(groupCtx, nil, experimentID, metrics.Primary)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("compute results: %w", err)
	}

	results := make([]VariantResult, 0, len(experiment.Variants))
	for _, variant := range experiment.Variants {
		n := sampleSizes[variant.ID]
		c := converters[variant.ID]
		rate := 0.0
		if n > 0 {
			rate = float64(c) / float64(n)
		}
		low, high := confidenceInterval(rate, n, confidence)
		results = append(results, VariantResult{
			VariantID:          variant.ID,
			VariantName:        variant.Name,
			SampleSize:         n,
			Conversions:        c,
			ConversionRate:     rate,
			TotalValue:         totalValues[variant.ID],
			ConfidenceInterval: [2]float64{low, high},
			PValue:             1,
		})
	}

	// First variant in stored order is the control.
	control := &results[0]
	control.IsControl = true
	alpha := 1 - confidence
	for i := 1; i < len(results); i++ {
		result := &results[i]
		if control.ConversionRate > 0 {
			result.Uplift = (result.ConversionRate - control.ConversionRate) / control.ConversionRate * 100
		}
		if result.SampleSize < minSampleForSignificance || control.SampleSize < minSampleForSignificance {
			continue
		}
		result.PValue = twoProportionPValue(control.Conversions, control.SampleSize, result.Conversions, result.SampleSize)
		result.StatisticalSignificance = result.PValue < alpha
	}
	return results, nil
}

// zMultiplier keeps the original three-entry table; configured levels are
// validated into [0.80, 0.99] and these cover the levels in use.
func zMultiplier(confidence float64) float64 {
	switch {
	case math.Abs(confidence-0.95) < 1e-9:
		return 1.96
	case math.Abs(confidence-0.99) < 1e-9:
		return 2.58
	default:
		return 1.645
	}
}

// confidenceInterval is the normal approximation to the binomial proportion,
// clamped to [0, 1].
func confidenceInterval(rate float64, n int64, confidence float64) (float64, float64) {
	if n <= 0 {
		return 0, 0
	}
	z := zMultiplier(confidence)
	margin := z * math.Sqrt(rate*(1-rate)/float64(n))
	return clamp01(rate - margin), clamp01(rate + margin)
}

// twoProportionPValue is a pooled two-sample z-test for conversion
// proportions; the returned value is the two-sided p-value.
func twoProportionPValue(controlConversions, controlN, variantConversions, variantN int64) float64 {
	if controlN <= 0 || variantN <= 0 {
		return 1
	}
	p1 := float64(controlConversions) / float64(controlN)
	p2 := float64(variantConversions) / float64(variantN)
	pooled := float64(controlConversions+variantConversions) / float64(controlN+variantN)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(controlN) + 1/float64(variantN)))
	if se == 0 {
		return 1
	}
	z := math.Abs(p2-p1) / se
	// Two-sided tail of the standard normal.
	return math.Erfc(z / math.Sqrt2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
