package services

import (
	"context"
	"log"

	pubnub "github.com/pubnub/go"

	"queue-system/config"
	"queue-system/models"
	"queue-system/monitoring"
	"queue-system/realtime"
	"queue-system/utils"
)

// SessionHub is the slice of the realtime hub the services need: fan-out
// to every session and kiosk lookup for pairing.
type SessionHub interface {
	Broadcast(msg realtime.Message) (delivered, dropped int)
	FindKiosk() (realtime.Sender, bool)
}

// Broadcaster fans the current queue snapshot out to every live channel:
// all websocket sessions and the field-device publish topic. Decoration is
// applied to a copy, never to the ledger's stored entries, and delivery is
// best-effort on every channel.
type Broadcaster struct {
	ledger    *Ledger
	estimator *Estimator
	hub       SessionHub
	pn        *pubnub.PubNub
	monitor   *monitoring.Monitor

	updatesChannel  string
	incomingChannel string
}

func NewBroadcaster(ledger *Ledger, estimator *Estimator, hub SessionHub, pn *pubnub.PubNub, monitor *monitoring.Monitor, cfg *config.Config) *Broadcaster {
	return &Broadcaster{
		ledger:          ledger,
		estimator:       estimator,
		hub:             hub,
		pn:              pn,
		monitor:         monitor,
		updatesChannel:  cfg.DeviceUpdatesChannel(),
		incomingChannel: cfg.DeviceIncomingChannel(),
	}
}

// Snapshot builds the decorated broadcast payload from a copy of the
// current state. waitedSeconds and waitingTimeHuman are presentation-only,
// recomputed from the stored waitingTime on every call.
func (b *Broadcaster) Snapshot() models.QueueSnapshot {
	state := b.ledger.Read()

	snapshot := models.QueueSnapshot{
		LastToken:         state.LastToken,
		Entries:           make([]models.SnapshotEntry, 0, len(state.Entries)),
		AvgServiceSeconds: b.estimator.AverageServiceSeconds(state),
	}
	for _, entry := range state.Entries {
		snapshot.Entries = append(snapshot.Entries, models.SnapshotEntry{
			TokenEntry:       entry,
			WaitedSeconds:    entry.WaitingTime,
			WaitingTimeHuman: utils.FormatDuration(entry.WaitingTime),
		})
	}
	return snapshot
}

// Broadcast emits the snapshot to all sessions and the device topic. Runs
// after every ledger mutation and after every successful reconcile.
func (b *Broadcaster) Broadcast() {
	snapshot := b.Snapshot()

	delivered, dropped := b.hub.Broadcast(realtime.Message{
		Type: realtime.TypeQueueUpdate,
		Data: snapshot,
	})
	if dropped > 0 {
		log.Printf("Queue update dropped for %d slow sessions (%d delivered)", dropped, delivered)
	}
	b.track("sessions", "success")

	b.publishToDevices(snapshot)
}

func (b *Broadcaster) publishToDevices(snapshot models.QueueSnapshot) {
	if b.pn == nil {
		return
	}

	_, _, err := b.pn.Publish().
		Channel(b.updatesChannel).
		Message(snapshot).
		Execute()
	if err != nil {
		b.track("devices", "failure")
		log.Printf("Device topic publish to %s failed: %v", b.updatesChannel, err)
		return
	}
	b.track("devices", "success")
}

// BridgeDeviceMessages forwards messages published by field devices on the
// incoming topic to all websocket subscribers, mirroring the device
// channel into the browser-facing one.
func (b *Broadcaster) BridgeDeviceMessages(ctx context.Context) {
	if b.pn == nil {
		return
	}

	listener := pubnub.NewListener()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.pn.Unsubscribe().Channels([]string{b.incomingChannel}).Execute()
				return
			case msg := <-listener.Message:
				if msg == nil {
					continue
				}
				b.hub.Broadcast(realtime.Message{
					Type:  realtime.TypeDeviceMessage,
					Topic: msg.Channel,
					Data:  msg.Message,
				})
			case <-listener.Status:
			case <-listener.Presence:
			}
		}
	}()

	b.pn.AddListener(listener)
	b.pn.Subscribe().Channels([]string{b.incomingChannel}).Execute()
	log.Printf("Subscribed to device topic %s", b.incomingChannel)
}

func (b *Broadcaster) track(channel, result string) {
	if b.monitor != nil {
		b.monitor.TrackBroadcast(channel, result)
	}
}
