package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"queue-system/config"
	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/monitoring"
	"queue-system/realtime"
)

const (
	failNoDevice    = "no_device"
	failDeviceError = "device_error"
	failTimeout     = "timeout"
)

// PairingService matches an interactive token request with exactly one
// connected kiosk device, which performs the physical token issuance and
// reports back. Requests are ephemeral in-process state and are never
// persisted.
type PairingService struct {
	hub     SessionHub
	queue   *QueueService
	monitor *monitoring.Monitor
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

type pendingRequest struct {
	req       models.PairingRequest
	requester realtime.Sender
	timer     *time.Timer
}

func NewPairingService(hub SessionHub, queue *QueueService, monitor *monitoring.Monitor, cfg *config.Config) *PairingService {
	return &PairingService{
		hub:     hub,
		queue:   queue,
		monitor: monitor,
		timeout: cfg.PairingTimeout,
		pending: make(map[string]*pendingRequest),
	}
}

// RequestToken forwards a token request to the first connected kiosk. If
// none is connected the requester is told immediately and the request is
// discarded.
func (p *PairingService) RequestToken(requester realtime.Sender, requestID string, profile models.Profile) error {
	device, ok := p.hub.FindKiosk()
	if !ok {
		requester.Send(realtime.Message{
			Type:      realtime.TypeRequestFailed,
			RequestID: requestID,
			Error:     failNoDevice,
		})
		p.track(failNoDevice)
		return fmt.Errorf("request %s: %w", requestID, status.ErrNoDevice)
	}

	pr := &pendingRequest{
		req: models.PairingRequest{
			RequestID: requestID,
			Profile:   profile,
			CreatedAt: time.Now().UTC(),
		},
		requester: requester,
	}
	if p.timeout > 0 {
		pr.timer = time.AfterFunc(p.timeout, func() { p.expire(requestID) })
	}

	p.mu.Lock()
	p.pending[requestID] = pr
	p.mu.Unlock()

	device.Send(realtime.Message{
		Type:      realtime.TypeRequestToken,
		RequestID: requestID,
		Profile:   &profile,
	})
	requester.Send(realtime.Message{
		Type:      realtime.TypeRequestSent,
		RequestID: requestID,
	})

	log.Printf("Pairing request %s forwarded to kiosk", requestID)
	return nil
}

// HandleKioskCreate records a token the kiosk issued. The ledger entry is
// created here, the kiosk gets an ack, and every subscriber learns the new
// token. Creation is honored even when no pending request matches: kiosks
// also issue walk-up tokens on their own.
func (p *PairingService) HandleKioskCreate(ctx context.Context, device realtime.Sender, requestID string, profile models.Profile) (models.TokenEntry, error) {
	entry, err := p.queue.TakeToken(ctx, profile, "kiosk")
	if err != nil {
		device.Send(realtime.Message{
			Type:      realtime.TypeKioskCreateFailed,
			RequestID: requestID,
			Error:     err.Error(),
		})
		p.track(failDeviceError)
		return models.TokenEntry{}, err
	}

	device.Send(realtime.Message{
		Type:      realtime.TypeKioskCreateAck,
		RequestID: requestID,
		Token:     entry.Token,
		OK:        true,
	})
	p.hub.Broadcast(realtime.Message{
		Type:    realtime.TypeTokenIssued,
		Token:   entry.Token,
		Profile: &profile,
	})

	p.resolve(requestID)
	p.track("acknowledged")
	return entry, nil
}

// HandleKioskFailed relays an explicit device-side failure back to the
// requester and discards the pending request.
func (p *PairingService) HandleKioskFailed(requestID, reason string) error {
	if reason == "" {
		reason = failDeviceError
	}
	return p.fail(requestID, reason)
}

func (p *PairingService) expire(requestID string) {
	// A losing race with resolve or an explicit failure is not an error.
	if err := p.fail(requestID, failTimeout); err != nil {
		return
	}
	log.Printf("Pairing request %s timed out", requestID)
}

func (p *PairingService) fail(requestID, reason string) error {
	pr := p.take(requestID)
	if pr == nil {
		return fmt.Errorf("request %s: %w", requestID, status.ErrRequestNotFound)
	}
	pr.requester.Send(realtime.Message{
		Type:      realtime.TypeRequestFailed,
		RequestID: requestID,
		Error:     reason,
	})
	p.track(reason)
	return nil
}

func (p *PairingService) resolve(requestID string) {
	p.take(requestID)
}

// take removes and returns the pending request, stopping its timer.
func (p *PairingService) take(requestID string) *pendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.pending[requestID]
	if !ok {
		return nil
	}
	delete(p.pending, requestID)
	if pr.timer != nil {
		pr.timer.Stop()
	}
	return pr
}

// PendingCount reports how many requests are waiting on a kiosk.
func (p *PairingService) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *PairingService) track(result string) {
	if p.monitor != nil {
		p.monitor.TrackPairing(result)
	}
}
