package models

import (
	"time"
)

type TokenStatus string

const (
	StatusWaiting   TokenStatus = "waiting"
	StatusArrived   TokenStatus = "arrived"
	StatusServed    TokenStatus = "served"
	StatusSkipped   TokenStatus = "skipped"
	StatusCancelled TokenStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s TokenStatus) Terminal() bool {
	return s == StatusServed || s == StatusSkipped || s == StatusCancelled
}

// CanTransitionTo validates the status state machine: waiting->arrived,
// waiting->cancelled, and served/skipped from any non-terminal state.
func (s TokenStatus) CanTransitionTo(next TokenStatus) bool {
	switch next {
	case StatusArrived, StatusCancelled:
		return s == StatusWaiting
	case StatusServed, StatusSkipped:
		return !s.Terminal()
	default:
		return false
	}
}

type TokenEntry struct {
	Token                int         `json:"token"`
	TokenID              string      `json:"tokenId"`
	ClinicID             string      `json:"clinicId,omitempty"`
	Status               TokenStatus `json:"status"`
	Name                 string      `json:"name,omitempty"`
	PhoneNumber          string      `json:"phoneNumber,omitempty"`
	Email                string      `json:"email,omitempty"`
	Timestamp            time.Time   `json:"timestamp"`
	ArrivedAt            *time.Time  `json:"arrivedAt,omitempty"`
	ServedAt             *time.Time  `json:"servedAt,omitempty"`
	CancelledAt          *time.Time  `json:"cancelledAt,omitempty"`
	WaitingTime          int         `json:"waitingTime"`
	EstimatedWaitSeconds int         `json:"estimatedWaitSeconds,omitempty"`
}

type QueueState struct {
	LastToken int          `json:"lastToken"`
	Entries   []TokenEntry `json:"entries"`
}

// Clone returns a deep copy so callers can never reach the ledger's
// stored entries through a snapshot.
func (s QueueState) Clone() QueueState {
	out := QueueState{LastToken: s.LastToken, Entries: make([]TokenEntry, len(s.Entries))}
	for i, e := range s.Entries {
		out.Entries[i] = e.Clone()
	}
	return out
}

func (e TokenEntry) Clone() TokenEntry {
	c := e
	c.ArrivedAt = cloneTime(e.ArrivedAt)
	c.ServedAt = cloneTime(e.ServedAt)
	c.CancelledAt = cloneTime(e.CancelledAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Profile carries the optional contact fields supplied when a token is taken.
type Profile struct {
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email,omitempty"`
}

// SnapshotEntry is a broadcast-only decoration of a TokenEntry. The human
// fields are recomputed on every broadcast and never stored.
type SnapshotEntry struct {
	TokenEntry
	WaitedSeconds    int    `json:"waitedSeconds"`
	WaitingTimeHuman string `json:"waitingTimeHuman,omitempty"`
}

type QueueSnapshot struct {
	LastToken         int             `json:"lastToken"`
	Entries           []SnapshotEntry `json:"entries"`
	AvgServiceSeconds int             `json:"avgServiceSeconds"`
}

// PairingRequest is the ephemeral record of one interactive token request
// forwarded to a kiosk. It is never persisted.
type PairingRequest struct {
	RequestID string    `json:"requestId"`
	Profile   Profile   `json:"profile"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}
