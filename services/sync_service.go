package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"queue-system/config"
	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/monitoring"
	"queue-system/utils"
)

// SyncService keeps the ledger and the remote replicated store loosely
// consistent. Pushes are fire-and-forget with at most one attempt; the pull
// path replaces the whole local state with the remote scan result
// (last-writer-wins). Neither path ever mutates ledger internals directly.
type SyncService struct {
	Remote    *redis.Client
	ledger    *Ledger
	estimator *Estimator
	monitor   *monitoring.Monitor
	breaker   *utils.CircuitBreaker

	enabled   bool
	clinicID  string
	keyPrefix string
}

func NewSyncService(remote *redis.Client, ledger *Ledger, estimator *Estimator, monitor *monitoring.Monitor, cfg *config.Config) *SyncService {
	return &SyncService{
		Remote:    remote,
		ledger:    ledger,
		estimator: estimator,
		monitor:   monitor,
		breaker:   utils.NewCircuitBreaker("remote-store"),
		enabled:   cfg.RemoteEnable,
		clinicID:  cfg.ClinicID,
		keyPrefix: cfg.RemoteKeyPrefix,
	}
}

func (s *SyncService) Enabled() bool {
	return s.enabled
}

func (s *SyncService) entryKey(tokenID string) string {
	return fmt.Sprintf("%s%s:%s", s.keyPrefix, s.clinicID, tokenID)
}

func (s *SyncService) scanPattern() string {
	return fmt.Sprintf("%s%s:*", s.keyPrefix, s.clinicID)
}

// PushDelta upserts one entry's attribute set and strips deprecated
// columns. One attempt only; the outcome is logged and counted, never
// retried, and a failure never reaches the caller's committed mutation.
func (s *SyncService) PushDelta(ctx context.Context, entry models.TokenEntry) error {
	if !s.enabled {
		return status.ErrRemoteDisabled
	}

	record := models.RemoteRecordFromEntry(entry, s.resolveWaitingTime(entry))
	key := s.entryKey(entry.TokenID)

	_, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, s.Remote.HSet(ctx, key, record.Pairs()...).Err()
	})
	if err != nil {
		s.track("push", "failure")
		log.Printf("Remote push failed for token %d: %v", entry.Token, err)
		return fmt.Errorf("%w: %v", status.ErrRemoteUnavailable, err)
	}

	// Schema-migration cleanup is best-effort; a failure here is ignored.
	if err := s.Remote.HDel(ctx, key, models.DeprecatedAttributes...).Err(); err != nil {
		log.Printf("Deprecated attribute cleanup failed for token %d: %v", entry.Token, err)
	}

	s.track("push", "success")
	log.Printf("Remote store: saved clinicId=%s tokenId=%s", entry.ClinicID, entry.TokenID)
	return nil
}

// PushElapsed writes only the waitingTime attribute, used for the
// high-frequency elapsed-time telemetry channel.
func (s *SyncService) PushElapsed(ctx context.Context, entry models.TokenEntry) error {
	if !s.enabled {
		return status.ErrRemoteDisabled
	}

	key := s.entryKey(entry.TokenID)
	_, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, s.Remote.HSet(ctx, key, "waitingTime", strconv.Itoa(entry.WaitingTime)).Err()
	})
	if err != nil {
		s.track("push_elapsed", "failure")
		return fmt.Errorf("%w: %v", status.ErrRemoteUnavailable, err)
	}

	s.track("push_elapsed", "success")
	return nil
}

// ReconcileFromRemote scans the full remote state, maps each record back
// into a TokenEntry (dropping individual malformed records), and swaps the
// result into the ledger sorted ascending by token with lastToken = max.
// Any failure leaves the current local state untouched.
func (s *SyncService) ReconcileFromRemote(ctx context.Context) (int, error) {
	if !s.enabled {
		return 0, status.ErrRemoteDisabled
	}

	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		return s.scanRemote(ctx)
	})
	if err != nil {
		s.track("pull", "failure")
		log.Printf("Remote reconcile failed, local state unchanged: %v", err)
		return 0, fmt.Errorf("%w: %v", status.ErrRemoteUnavailable, err)
	}

	entries := result.([]models.TokenEntry)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Token < entries[j].Token })

	lastToken := 0
	if len(entries) > 0 {
		lastToken = entries[len(entries)-1].Token
	}

	if err := s.ledger.ReplaceAll(models.QueueState{LastToken: lastToken, Entries: entries}); err != nil {
		s.track("pull", "failure")
		return 0, err
	}

	s.track("pull", "success")
	log.Printf("Loaded %d entries from remote store into local ledger", len(entries))
	return len(entries), nil
}

func (s *SyncService) scanRemote(ctx context.Context) ([]models.TokenEntry, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.Remote.Scan(ctx, cursor, s.scanPattern(), 100).Result()
		if err != nil {
			return nil, fmt.Errorf("remote scan: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	entries := make([]models.TokenEntry, 0, len(keys))
	for _, key := range keys {
		attrs, err := s.Remote.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("remote read %s: %w", key, err)
		}

		entry, err := models.RemoteRecordFromAttrs(attrs).ToEntry(s.clinicID)
		if err != nil {
			if errors.Is(err, status.ErrMalformedRecord) {
				log.Printf("Dropping malformed remote record %s", key)
				continue
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// resolveWaitingTime mirrors what the remote schema expects in the
// waitingTime column: the client-reported value when present, the actual
// issue-to-arrival wait for arrived entries, otherwise the current
// ahead-count estimate.
func (s *SyncService) resolveWaitingTime(entry models.TokenEntry) int {
	if entry.WaitingTime > 0 {
		return entry.WaitingTime
	}
	if entry.ArrivedAt != nil {
		d := entry.ArrivedAt.Sub(entry.Timestamp).Seconds()
		if d > 0 {
			return int(math.Round(d))
		}
		return 0
	}
	if s.ledger == nil || s.estimator == nil {
		return 0
	}
	state := s.ledger.Read()
	ahead := s.estimator.CountAhead(state, entry.Token)
	return ahead * s.estimator.AverageServiceSeconds(state)
}

func (s *SyncService) track(operation, result string) {
	if s.monitor != nil {
		s.monitor.TrackSyncOperation(operation, result)
	}
}
