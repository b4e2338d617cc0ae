package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queue-system/config"
	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/realtime"
)

func newPairingHarness(t *testing.T, mutate func(cfg *config.Config)) (*PairingService, *fakeHub, *Ledger) {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	estimator := NewEstimator(cfg)
	ledger, err := NewLedger(cfg, estimator)
	require.NoError(t, err)

	hub := &fakeHub{}
	broadcaster := NewBroadcaster(ledger, estimator, hub, nil, nil, cfg)
	queue := NewQueueService(ledger, estimator, nil, broadcaster, nil, nil)
	return NewPairingService(hub, queue, nil, cfg), hub, ledger
}

func TestPairing_NoDeviceConnected(t *testing.T) {
	pairing, _, _ := newPairingHarness(t, nil)
	requester := &fakeSender{}

	err := pairing.RequestToken(requester, "req-1", models.Profile{Name: "Alice"})
	assert.ErrorIs(t, err, status.ErrNoDevice)
	assert.Zero(t, pairing.PendingCount())

	failed, ok := requester.byType(realtime.TypeRequestFailed)
	require.True(t, ok)
	assert.Equal(t, "req-1", failed.RequestID)
	assert.Equal(t, "no_device", failed.Error)
}

func TestPairing_RequestForwardedToKiosk(t *testing.T) {
	pairing, hub, _ := newPairingHarness(t, nil)
	kiosk := &fakeSender{}
	hub.kiosk = kiosk
	requester := &fakeSender{}

	err := pairing.RequestToken(requester, "req-2", models.Profile{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, pairing.PendingCount())

	forwarded, ok := kiosk.byType(realtime.TypeRequestToken)
	require.True(t, ok)
	assert.Equal(t, "req-2", forwarded.RequestID)
	require.NotNil(t, forwarded.Profile)
	assert.Equal(t, "Alice", forwarded.Profile.Name)

	sent, ok := requester.byType(realtime.TypeRequestSent)
	require.True(t, ok)
	assert.Equal(t, "req-2", sent.RequestID)
}

func TestPairing_KioskCreateResolvesRequest(t *testing.T) {
	pairing, hub, ledger := newPairingHarness(t, nil)
	kiosk := &fakeSender{}
	hub.kiosk = kiosk
	requester := &fakeSender{}

	require.NoError(t, pairing.RequestToken(requester, "req-3", models.Profile{Name: "Alice"}))

	entry, err := pairing.HandleKioskCreate(context.Background(), kiosk, "req-3", models.Profile{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Token)
	assert.Zero(t, pairing.PendingCount())

	ack, ok := kiosk.byType(realtime.TypeKioskCreateAck)
	require.True(t, ok)
	assert.True(t, ack.OK)
	assert.Equal(t, 1, ack.Token)
	assert.Equal(t, "req-3", ack.RequestID)

	issued := hub.broadcastsByType(realtime.TypeTokenIssued)
	require.Len(t, issued, 1)
	assert.Equal(t, 1, issued[0].Token)

	// the creation itself also fanned out a fresh snapshot
	assert.NotEmpty(t, hub.broadcastsByType(realtime.TypeQueueUpdate))

	state := ledger.Read()
	require.Len(t, state.Entries, 1)
	assert.Equal(t, "Alice", state.Entries[0].Name)
}

func TestPairing_WalkUpCreateWithoutPendingRequest(t *testing.T) {
	pairing, hub, ledger := newPairingHarness(t, nil)
	kiosk := &fakeSender{}
	hub.kiosk = kiosk

	entry, err := pairing.HandleKioskCreate(context.Background(), kiosk, "", models.Profile{})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Token)
	assert.Equal(t, 1, ledger.Read().LastToken)

	_, ok := kiosk.byType(realtime.TypeKioskCreateAck)
	assert.True(t, ok)
}

func TestPairing_KioskReportedFailure(t *testing.T) {
	pairing, hub, _ := newPairingHarness(t, nil)
	kiosk := &fakeSender{}
	hub.kiosk = kiosk
	requester := &fakeSender{}

	require.NoError(t, pairing.RequestToken(requester, "req-4", models.Profile{}))

	require.NoError(t, pairing.HandleKioskFailed("req-4", "printer_jam"))
	assert.Zero(t, pairing.PendingCount())

	failed, ok := requester.byType(realtime.TypeRequestFailed)
	require.True(t, ok)
	assert.Equal(t, "printer_jam", failed.Error)
}

func TestPairing_KioskFailureDefaultsReason(t *testing.T) {
	pairing, hub, _ := newPairingHarness(t, nil)
	hub.kiosk = &fakeSender{}
	requester := &fakeSender{}

	require.NoError(t, pairing.RequestToken(requester, "req-5", models.Profile{}))
	require.NoError(t, pairing.HandleKioskFailed("req-5", ""))

	failed, ok := requester.byType(realtime.TypeRequestFailed)
	require.True(t, ok)
	assert.Equal(t, "device_error", failed.Error)
}

func TestPairing_UnknownRequestFailure(t *testing.T) {
	pairing, _, _ := newPairingHarness(t, nil)
	err := pairing.HandleKioskFailed("never-seen", "x")
	assert.ErrorIs(t, err, status.ErrRequestNotFound)
}

func TestPairing_RequestTimesOut(t *testing.T) {
	pairing, hub, _ := newPairingHarness(t, func(cfg *config.Config) {
		cfg.PairingTimeout = 20 * time.Millisecond
	})
	hub.kiosk = &fakeSender{}
	requester := &fakeSender{}

	require.NoError(t, pairing.RequestToken(requester, "req-6", models.Profile{}))
	require.Equal(t, 1, pairing.PendingCount())

	assert.Eventually(t, func() bool {
		return pairing.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)

	failed, ok := requester.byType(realtime.TypeRequestFailed)
	require.True(t, ok)
	assert.Equal(t, "timeout", failed.Error)
}

func TestPairing_ResolvedRequestDoesNotTimeOut(t *testing.T) {
	pairing, hub, _ := newPairingHarness(t, func(cfg *config.Config) {
		cfg.PairingTimeout = 20 * time.Millisecond
	})
	kiosk := &fakeSender{}
	hub.kiosk = kiosk
	requester := &fakeSender{}

	require.NoError(t, pairing.RequestToken(requester, "req-7", models.Profile{}))
	_, err := pairing.HandleKioskCreate(context.Background(), kiosk, "req-7", models.Profile{})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	_, timedOut := requester.byType(realtime.TypeRequestFailed)
	assert.False(t, timedOut)
}
