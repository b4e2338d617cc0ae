package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"queue-system/models"
)

var (
	queueEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_entries_total",
			Help: "Current number of ledger entries per status",
		},
		[]string{"status"},
	)

	lastToken = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_last_token",
			Help: "Last issued token number",
		},
	)

	avgServiceSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_avg_service_seconds",
			Help: "Current median-based average service duration",
		},
	)

	tokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tokens_issued_total",
			Help: "Tokens issued, by origin channel",
		},
		[]string{"origin"},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_transitions_total",
			Help: "Status transition attempts",
		},
		[]string{"status", "result"},
	)

	syncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_sync_operations_total",
			Help: "Remote store push/pull attempts",
		},
		[]string{"operation", "status"},
	)

	broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_broadcasts_total",
			Help: "Snapshot fan-out attempts per channel",
		},
		[]string{"channel", "status"},
	)

	pairingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairing_requests_total",
			Help: "Device pairing request outcomes",
		},
		[]string{"result"},
	)
)

// StateReader is the read-only slice of the ledger the monitor needs.
type StateReader interface {
	Read() models.QueueState
}

// AverageProvider exposes the estimator's current average.
type AverageProvider interface {
	AverageServiceSeconds(state models.QueueState) int
}

type Monitor struct {
	ledger    StateReader
	estimator AverageProvider
}

func NewMonitor(ledger StateReader, estimator AverageProvider) *Monitor {
	return &Monitor{ledger: ledger, estimator: estimator}
}

// Collect periodically refreshes the composition gauges from the ledger.
func (m *Monitor) Collect(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collectQueueMetrics()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) collectQueueMetrics() {
	state := m.ledger.Read()

	counts := map[models.TokenStatus]int{}
	for _, entry := range state.Entries {
		counts[entry.Status]++
	}
	for _, s := range []models.TokenStatus{
		models.StatusWaiting, models.StatusArrived, models.StatusServed,
		models.StatusSkipped, models.StatusCancelled,
	} {
		queueEntries.WithLabelValues(string(s)).Set(float64(counts[s]))
	}

	lastToken.Set(float64(state.LastToken))
	avgServiceSeconds.Set(float64(m.estimator.AverageServiceSeconds(state)))
}

func (m *Monitor) TrackTokenIssued(origin string) {
	tokensIssued.WithLabelValues(origin).Inc()
}

func (m *Monitor) TrackTransition(status, result string) {
	transitions.WithLabelValues(status, result).Inc()
}

func (m *Monitor) TrackSyncOperation(operation, status string) {
	syncOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackBroadcast(channel, status string) {
	broadcasts.WithLabelValues(channel, status).Inc()
}

func (m *Monitor) TrackPairing(result string) {
	pairingRequests.WithLabelValues(result).Inc()
}
