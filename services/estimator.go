package services

import (
	"math"
	"sort"

	"queue-system/config"
	"queue-system/models"
)

// Estimator derives wait-time figures from the queue's completion history.
// The median of recent service durations is used rather than the mean so a
// single anomalous long sit cannot skew every waiting entry's estimate.
type Estimator struct {
	defaultAvgSeconds int
	capacity          int
	sampleSize        int
}

func NewEstimator(cfg *config.Config) *Estimator {
	capacity := cfg.ServiceCapacity
	if capacity < 1 {
		capacity = 1
	}
	sampleSize := cfg.MedianSampleSize
	if sampleSize < 1 {
		sampleSize = 50
	}
	return &Estimator{
		defaultAvgSeconds: cfg.DefaultAvgServiceSeconds,
		capacity:          capacity,
		sampleSize:        sampleSize,
	}
}

// AverageServiceSeconds computes the median service duration over the most
// recent served entries. Duration is servedAt minus arrivedAt when the
// arrival was recorded, otherwise servedAt minus issuance. Returns the
// configured default when no valid sample exists, floored at 5 seconds
// otherwise.
func (e *Estimator) AverageServiceSeconds(state models.QueueState) int {
	served := make([]models.TokenEntry, 0, len(state.Entries))
	for _, entry := range state.Entries {
		if entry.Status == models.StatusServed && entry.ServedAt != nil {
			served = append(served, entry)
		}
	}
	if len(served) == 0 {
		return e.defaultAvgSeconds
	}

	sort.Slice(served, func(i, j int) bool {
		return served[i].ServedAt.After(*served[j].ServedAt)
	})
	if len(served) > e.sampleSize {
		served = served[:e.sampleSize]
	}

	durations := make([]float64, 0, len(served))
	for _, entry := range served {
		start := entry.Timestamp
		if entry.ArrivedAt != nil {
			start = *entry.ArrivedAt
		}
		d := entry.ServedAt.Sub(start).Seconds()
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			continue
		}
		durations = append(durations, d)
	}
	if len(durations) == 0 {
		return e.defaultAvgSeconds
	}

	sort.Float64s(durations)
	mid := len(durations) / 2
	var median float64
	if len(durations)%2 == 1 {
		median = durations[mid]
	} else {
		median = (durations[mid-1] + durations[mid]) / 2
	}

	avg := int(math.Round(median))
	if avg < 5 {
		avg = 5
	}
	return avg
}

// RecomputeEstimates refreshes estimatedWaitSeconds for every waiting entry.
// "Ahead" counts only other waiting entries with a strictly smaller token;
// capacity scales the estimate for parallel service lines. Must run after
// every mutation that changes the waiting set or completion history.
func (e *Estimator) RecomputeEstimates(state *models.QueueState) {
	avg := e.AverageServiceSeconds(*state)
	for i := range state.Entries {
		entry := &state.Entries[i]
		if entry.Status != models.StatusWaiting {
			continue
		}
		ahead := 0
		for _, other := range state.Entries {
			if other.Status == models.StatusWaiting && other.Token < entry.Token {
				ahead++
			}
		}
		entry.EstimatedWaitSeconds = int(math.Round(float64(ahead*avg) / float64(e.capacity)))
	}
}

// CountAhead returns how many waiting entries precede the given token.
func (e *Estimator) CountAhead(state models.QueueState, token int) int {
	ahead := 0
	for _, entry := range state.Entries {
		if entry.Status == models.StatusWaiting && entry.Token < token {
			ahead++
		}
	}
	return ahead
}
