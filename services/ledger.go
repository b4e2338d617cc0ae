package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"queue-system/config"
	"queue-system/internal/status"
	"queue-system/models"
)

const stateFileName = "queue.json"

// Ledger is the single authoritative owner of the queue state. Every read
// and mutation goes through it; the durable JSON document is rewritten
// whole on each mutation. All mutating operations hold the mutex across
// their entire read-modify-write so token allocation can never race.
type Ledger struct {
	mu        sync.Mutex
	path      string
	clinicID  string
	estimator *Estimator
	state     models.QueueState
}

func NewLedger(cfg *config.Config, estimator *Estimator) (*Ledger, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	l := &Ledger{
		path:      filepath.Join(cfg.DataDir, stateFileName),
		clinicID:  cfg.ClinicID,
		estimator: estimator,
	}

	raw, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &l.state); err != nil {
			return nil, fmt.Errorf("parse state file %s: %w", l.path, err)
		}
	case os.IsNotExist(err):
		l.state = models.QueueState{Entries: []models.TokenEntry{}}
		if err := l.persist(l.state); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read state file %s: %w", l.path, err)
	}

	return l, nil
}

// Read returns a deep copy of the current state.
func (l *Ledger) Read() models.QueueState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// CreateEntry allocates lastToken+1, appends a waiting entry and persists
// synchronously. The returned entry carries the estimate computed against
// the post-append composition.
func (l *Ledger) CreateEntry(profile models.Profile) (models.TokenEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.Clone()
	token := next.LastToken + 1

	entry := models.TokenEntry{
		Token:       token,
		TokenID:     strconv.Itoa(token),
		ClinicID:    l.clinicID,
		Status:      models.StatusWaiting,
		Name:        strings.TrimSpace(profile.Name),
		PhoneNumber: strings.TrimSpace(profile.PhoneNumber),
		Email:       strings.TrimSpace(profile.Email),
		Timestamp:   time.Now().UTC(),
		WaitingTime: 0,
	}

	next.LastToken = token
	next.Entries = append(next.Entries, entry)
	l.estimator.RecomputeEstimates(&next)

	if err := l.persist(next); err != nil {
		return models.TokenEntry{}, err
	}
	l.state = next

	return l.entryByToken(token), nil
}

// Transition moves an entry to newStatus, stamping the matching instant
// exactly once. waitingTime, when non-nil, records the client's final
// elapsed seconds (the arrival flow sends it along with the transition).
func (l *Ledger) Transition(token int, newStatus models.TokenStatus, waitingTime *int) (models.TokenEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.Clone()
	idx := indexOfToken(next, token)
	if idx < 0 {
		return models.TokenEntry{}, fmt.Errorf("token %d: %w", token, status.ErrTokenNotFound)
	}

	entry := &next.Entries[idx]
	if !entry.Status.CanTransitionTo(newStatus) {
		return models.TokenEntry{}, fmt.Errorf("token %d is %s: %w", token, entry.Status, status.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	entry.Status = newStatus
	switch newStatus {
	case models.StatusArrived:
		entry.ArrivedAt = &now
	case models.StatusServed, models.StatusSkipped:
		entry.ServedAt = &now
	case models.StatusCancelled:
		entry.CancelledAt = &now
	}

	if waitingTime != nil {
		wt := *waitingTime
		if wt < 0 {
			wt = 0
		}
		entry.WaitingTime = wt
	}

	l.estimator.RecomputeEstimates(&next)

	if err := l.persist(next); err != nil {
		return models.TokenEntry{}, err
	}
	l.state = next

	return next.Entries[idx].Clone(), nil
}

// UpdateElapsed records client-reported elapsed wait for a waiting entry.
// This channel is advisory telemetry from the client's own timer: unknown
// tokens and non-waiting entries are silently ignored.
func (l *Ledger) UpdateElapsed(token, seconds int) (models.TokenEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.Clone()
	idx := indexOfToken(next, token)
	if idx < 0 || next.Entries[idx].Status != models.StatusWaiting {
		return models.TokenEntry{}, false
	}

	if seconds < 0 {
		seconds = 0
	}
	next.Entries[idx].WaitingTime = seconds

	if err := l.persist(next); err != nil {
		return models.TokenEntry{}, false
	}
	l.state = next

	return next.Entries[idx].Clone(), true
}

// Reset replaces the state with the empty state.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := models.QueueState{LastToken: 0, Entries: []models.TokenEntry{}}
	if err := l.persist(next); err != nil {
		return err
	}
	l.state = next
	return nil
}

// ReplaceAll swaps in a reconciled state as one atomic step. Only the
// synchronizer's pull path calls this; the swap is last-writer-wins by
// design.
func (l *Ledger) ReplaceAll(newState models.QueueState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := newState.Clone()
	if next.Entries == nil {
		next.Entries = []models.TokenEntry{}
	}
	l.estimator.RecomputeEstimates(&next)

	if err := l.persist(next); err != nil {
		return err
	}
	l.state = next
	return nil
}

// persist rewrites the durable document via temp file + rename so a crash
// mid-write can never leave a truncated state file.
func (l *Ledger) persist(state models.QueueState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".queue-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	if _, err := tmp.Write(raw); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (l *Ledger) entryByToken(token int) models.TokenEntry {
	idx := indexOfToken(l.state, token)
	if idx < 0 {
		return models.TokenEntry{}
	}
	return l.state.Entries[idx].Clone()
}

func indexOfToken(state models.QueueState, token int) int {
	for i, e := range state.Entries {
		if e.Token == token {
			return i
		}
	}
	return -1
}
