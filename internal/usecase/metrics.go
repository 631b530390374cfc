package usecase

import "context"

// MetricsSummary represents aggregated sorting insights.
type MetricsSummary struct {
	TotalCycles         int64   `json:"total_cycles"`
	RecyclableCycles    int64   `json:"recyclable_cycles"`
	NonRecyclableCycles int64   `json:"nonrecyclable_cycles"`
	UnknownCycles       int64   `json:"unknown_cycles"`
	ArchivedPhotos      int64   `json:"archived_photos"`
	FallbackRate        float64 `json:"fallback_rate"`
	AverageCycleMs      float64 `json:"average_cycle_ms"`
}

// GetMetricsSummary aggregates cycle metrics from persisted logs.
func (h *CycleHistory) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := h.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalCycles:         aggregation.TotalCount,
		RecyclableCycles:    aggregation.RecyclableCount,
		NonRecyclableCycles: aggregation.NonRecyclableCount,
		UnknownCycles:       aggregation.UnknownCount,
		ArchivedPhotos:      aggregation.ArchivedCount,
		AverageCycleMs:      aggregation.AverageDurationMs,
	}

	if aggregation.TotalCount > 0 {
		summary.FallbackRate = float64(aggregation.LocalCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
