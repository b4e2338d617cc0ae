package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/monitoring"
	"queue-system/utils"
)

// QueueService ties the engine together: every external event mutates
// state through the ledger, then the delta is pushed to the remote store
// out of line and the new snapshot is fanned out. Remote and fan-out
// failures never undo a committed local mutation.
type QueueService struct {
	Ledger      *Ledger
	estimator   *Estimator
	sync        *SyncService
	broadcaster *Broadcaster
	notifier    Notifier
	monitor     *monitoring.Monitor
}

func NewQueueService(ledger *Ledger, estimator *Estimator, syncService *SyncService, broadcaster *Broadcaster, notifier Notifier, monitor *monitoring.Monitor) *QueueService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &QueueService{
		Ledger:      ledger,
		estimator:   estimator,
		sync:        syncService,
		broadcaster: broadcaster,
		notifier:    notifier,
		monitor:     monitor,
	}
}

// TakeToken allocates the next token for the given profile. origin names
// the channel that asked ("web", "kiosk") for logging and metrics.
func (s *QueueService) TakeToken(ctx context.Context, profile models.Profile, origin string) (models.TokenEntry, error) {
	entry, err := s.Ledger.CreateEntry(profile)
	if err != nil {
		return models.TokenEntry{}, err
	}

	s.pushAsync(entry)
	go s.notifier.TokenCreated(context.WithoutCancel(ctx), entry)
	s.broadcaster.Broadcast()

	if s.monitor != nil {
		s.monitor.TrackTokenIssued(origin)
	}
	log.Printf("Created token %d via %s", entry.Token, origin)
	return entry, nil
}

// Cancel moves a waiting token to cancelled.
func (s *QueueService) Cancel(ctx context.Context, token int) (models.TokenEntry, error) {
	return s.transition(ctx, token, models.StatusCancelled, nil)
}

// Arrive records that the holder reached the service point. elapsed, when
// non-nil, is the client's final self-timed wait in seconds.
func (s *QueueService) Arrive(ctx context.Context, token int, elapsed *int) (models.TokenEntry, error) {
	return s.transition(ctx, token, models.StatusArrived, elapsed)
}

// AdminAction applies a staff decision: "serve" or "skip".
func (s *QueueService) AdminAction(ctx context.Context, action string, token int) (models.TokenEntry, error) {
	switch action {
	case "serve":
		return s.transition(ctx, token, models.StatusServed, nil)
	case "skip":
		return s.transition(ctx, token, models.StatusSkipped, nil)
	default:
		return models.TokenEntry{}, fmt.Errorf("unknown action %q", action)
	}
}

func (s *QueueService) transition(ctx context.Context, token int, newStatus models.TokenStatus, elapsed *int) (models.TokenEntry, error) {
	entry, err := s.Ledger.Transition(token, newStatus, elapsed)
	if err != nil {
		if s.monitor != nil {
			s.monitor.TrackTransition(string(newStatus), "failure")
		}
		return models.TokenEntry{}, err
	}

	s.pushAsync(entry)
	s.broadcaster.Broadcast()

	if newStatus == models.StatusServed || newStatus == models.StatusSkipped {
		s.notifyNextInLine(ctx, entry.Token)
	}

	if s.monitor != nil {
		s.monitor.TrackTransition(string(newStatus), "success")
	}
	return entry, nil
}

// notifyNextInLine tells the front of the waiting line its turn is coming
// up, after the counter frees.
func (s *QueueService) notifyNextInLine(ctx context.Context, nowServing int) {
	state := s.Ledger.Read()
	for _, entry := range state.Entries {
		if entry.Status == models.StatusWaiting {
			go s.notifier.ApproachingTurn(context.WithoutCancel(ctx), entry, nowServing)
			return
		}
	}
}

// UpdateElapsed ingests the client timer heartbeat for a waiting token.
// Unknown or non-waiting tokens are ignored without error.
func (s *QueueService) UpdateElapsed(ctx context.Context, token, seconds int) {
	entry, ok := s.Ledger.UpdateElapsed(token, seconds)
	if !ok {
		return
	}

	if s.sync != nil && s.sync.Enabled() {
		go func() {
			if err := s.sync.PushElapsed(context.WithoutCancel(ctx), entry); err != nil {
				log.Printf("Elapsed-time push for token %d skipped: %v", entry.Token, err)
			}
		}()
	}
	s.broadcaster.Broadcast()
}

// Reset replaces the ledger with the empty state.
func (s *QueueService) Reset(ctx context.Context) error {
	if err := s.Ledger.Reset(); err != nil {
		return err
	}
	s.broadcaster.Broadcast()
	return nil
}

// ETAResult is the wait estimate for one token at query time.
type ETAResult struct {
	Token             int    `json:"token"`
	ETASeconds        int    `json:"etaSeconds"`
	ETAHuman          string `json:"etaHuman"`
	AvgServiceSeconds int    `json:"avgServiceSeconds"`
	Ahead             int    `json:"ahead"`
}

// ETA estimates seconds until the given token is served, based on the
// current waiting set and average service duration.
func (s *QueueService) ETA(ctx context.Context, token int) ETAResult {
	state := s.Ledger.Read()
	avg := s.estimator.AverageServiceSeconds(state)
	ahead := s.estimator.CountAhead(state, token)
	eta := ahead * avg
	return ETAResult{
		Token:             token,
		ETASeconds:        eta,
		ETAHuman:          utils.FormatDuration(eta),
		AvgServiceSeconds: avg,
		Ahead:             ahead,
	}
}

// Snapshot exposes the decorated read model (HTTP GET /api/queue).
func (s *QueueService) Snapshot() models.QueueSnapshot {
	return s.broadcaster.Snapshot()
}

// SyncFromRemote runs one reconcile pass and, on success, fans out the
// freshly replaced state.
func (s *QueueService) SyncFromRemote(ctx context.Context) (int, error) {
	if s.sync == nil {
		return 0, status.ErrRemoteDisabled
	}
	n, err := s.sync.ReconcileFromRemote(ctx)
	if err != nil {
		return 0, err
	}
	s.broadcaster.Broadcast()
	return n, nil
}

// RunPoller reconciles on startup and then on the configured interval
// until the context is cancelled.
func (s *QueueService) RunPoller(ctx context.Context, interval time.Duration) {
	if s.sync == nil || !s.sync.Enabled() {
		return
	}
	if interval < time.Second {
		interval = time.Second
	}

	if _, err := s.SyncFromRemote(ctx); err != nil {
		log.Printf("Initial remote sync skipped: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SyncFromRemote(ctx); err != nil {
				log.Printf("Scheduled remote sync skipped: %v", err)
			}
		case <-ctx.Done():
			log.Println("Remote store poller stopping")
			return
		}
	}
}

func (s *QueueService) pushAsync(entry models.TokenEntry) {
	if s.sync == nil || !s.sync.Enabled() {
		return
	}
	go func() {
		// Errors are already logged and counted inside PushDelta; the
		// at-most-one-attempt policy means there is nothing left to do.
		_ = s.sync.PushDelta(context.Background(), entry)
	}()
}
