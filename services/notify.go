package services

import (
	"context"
	"log"

	"queue-system/models"
)

// Notifier is the interface to outbound person notifications. Actual
// delivery (email, SMS) is an external collaborator; the engine only
// decides when a notification is due. Implementations must be safe to call
// from goroutines and must never block queue processing.
type Notifier interface {
	TokenCreated(ctx context.Context, entry models.TokenEntry)
	ApproachingTurn(ctx context.Context, entry models.TokenEntry, nowServing int)
}

// LogNotifier records notification intents to the log. Used when no
// delivery backend is configured.
type LogNotifier struct{}

func (LogNotifier) TokenCreated(_ context.Context, entry models.TokenEntry) {
	if entry.Email == "" {
		return
	}
	log.Printf("Notify %s: token #%d created", entry.Email, entry.Token)
}

func (LogNotifier) ApproachingTurn(_ context.Context, entry models.TokenEntry, nowServing int) {
	if entry.Email == "" {
		return
	}
	log.Printf("Notify %s: token #%d approaching (now serving #%d)", entry.Email, entry.Token, nowServing)
}
