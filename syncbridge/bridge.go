// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package syncbridge reconciles the two directions of state change.
//
// Outbound: a REST write that has been committed to the attribute store is
// turned into one normalized message toward the automation host, plus one
// per-device relay carrying the device's configured topic label. The emission
// happens strictly after the store commit, so any concurrent read already
// observes the new state.
//
// Inbound: a host message addressed to a device id applies the same merge
// rule to the store but emits nothing back out. That asymmetry is what
// prevents feedback loops between the assistant and the host.
package syncbridge

import (
	"context"
	"time"

	"github.com/soothill/hue-bridge-emulator/pkg/errors"
	"github.com/soothill/hue-bridge-emulator/pkg/interfaces"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
	"github.com/soothill/hue-bridge-emulator/pkg/metrics"
	"github.com/soothill/hue-bridge-emulator/registry"
	"github.com/soothill/hue-bridge-emulator/state"
)

const (
	changeBufferSize    = 100
	historyWriteTimeout = 5 * time.Second
)

// Publisher is the outbound half of the host link.
// A nil publisher disables outbound emission but not store updates.
type Publisher interface {
	// PublishState broadcasts a state message to the shared host channel.
	PublishState(msg *OutboundMessage) error

	// PublishRelay forwards a state message to one device's own channel,
	// identified by its configured topic label.
	PublishRelay(label string, msg *OutboundMessage) error
}

// OutboundMessage is the normalized state-change message sent to the host.
// It carries the full merged attribute record plus the on/off literal older
// automations switch on.
type OutboundMessage struct {
	state.Attributes

	Payload  string `json:"payload"` // "on" or "off"
	DeviceID string `json:"deviceid"`
	Topic    string `json:"topic"`
}

// InboundMessage is a host-originated attribute update for one device.
type InboundMessage struct {
	DeviceID string        `json:"deviceid"`
	Payload  *state.Update `json:"payload"`
}

// Bridge applies inbound host messages and emits outbound ones.
type Bridge struct {
	store     *state.Store
	registry  *registry.Registry
	publisher Publisher
	history   interfaces.HistoryStorage

	changes chan *interfaces.StateChange
	stop    chan struct{}
	done    chan struct{}
}

// New creates a bridge. Publisher and history may be nil.
func New(store *state.Store, reg *registry.Registry, publisher Publisher, history interfaces.HistoryStorage) *Bridge {
	return &Bridge{
		store:     store,
		registry:  reg,
		publisher: publisher,
		history:   history,
		changes:   make(chan *interfaces.StateChange, changeBufferSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SetPublisher attaches the outbound host link. Called once during wiring,
// before any request traffic, because the link itself needs the bridge as
// its inbound handler.
func (b *Bridge) SetPublisher(p Publisher) {
	b.publisher = p
}

// Start launches the history writer goroutine.
func (b *Bridge) Start(ctx context.Context) {
	go b.writeHistory(ctx)
}

// Stop drains queued history writes and stops the writer. The changes
// channel stays open so a commit that lands mid-shutdown (the API server
// notifies asynchronously) is dropped rather than crashing the process.
func (b *Bridge) Stop() {
	close(b.stop)
	<-b.done
	if b.history != nil {
		b.history.Flush()
	}
}

// StateCommitted emits the outbound messages for a committed REST write.
// It satisfies the API server's commit listener contract.
func (b *Bridge) StateCommitted(device interfaces.Device, attrs state.Attributes) {
	b.observe(device, attrs, "api")

	if b.publisher == nil {
		return
	}

	msg := &OutboundMessage{
		Attributes: attrs,
		Payload:    onOffLiteral(attrs.On),
		DeviceID:   device.ID,
		Topic:      "",
	}

	if err := b.publisher.PublishState(msg); err != nil {
		logger.Error().Err(err).Str("device_id", device.ID).Msg("Failed to publish state message")
		return
	}
	metrics.SyncMessagesOutTotal.Inc()

	if device.Topic != "" {
		relay := *msg
		relay.Topic = device.Topic
		if err := b.publisher.PublishRelay(device.Topic, &relay); err != nil {
			logger.Error().Err(err).Str("device_id", device.ID).Str("topic", device.Topic).Msg("Failed to publish relay message")
		}
	}
}

// ApplyInbound merges a host-originated update into the store.
// No outbound message is emitted for the same change.
func (b *Bridge) ApplyInbound(msg *InboundMessage) error {
	if msg == nil || msg.DeviceID == "" {
		return errors.NewSyncError("apply inbound", "", errors.ErrDeviceNotFound)
	}
	if msg.Payload == nil || msg.Payload.Empty() {
		logger.Debug().Str("device_id", msg.DeviceID).Msg("Ignoring inbound message without payload")
		return nil
	}

	id := registry.NormalizeID(msg.DeviceID)
	attrs, err := b.store.Set(id, *msg.Payload)
	if err != nil {
		return errors.NewSyncError("apply inbound", id, err)
	}

	metrics.SyncMessagesInTotal.Inc()
	metrics.StateUpdatesTotal.WithLabelValues("host").Inc()

	device, ok := b.registry.Lookup(id)
	if !ok {
		device = interfaces.Device{ID: id}
	}
	b.observe(device, attrs, "host")

	logger.Debug().
		Str("device_id", id).
		Bool("on", attrs.On).
		Int("bri", attrs.Bri).
		Msg("Applied inbound state update")

	return nil
}

// observe updates per-device gauges and queues a history record.
func (b *Bridge) observe(device interfaces.Device, attrs state.Attributes, source string) {
	on := 0.0
	if attrs.On {
		on = 1.0
	}
	metrics.DeviceOn.WithLabelValues(device.ID, device.Name).Set(on)
	metrics.DeviceBrightness.WithLabelValues(device.ID, device.Name).Set(float64(attrs.Bri))

	if b.history == nil {
		return
	}

	change := &interfaces.StateChange{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Source:     source,
		Timestamp:  time.Now(),
		On:         attrs.On,
		Bri:        attrs.Bri,
		Hue:        attrs.Hue,
		Sat:        attrs.Sat,
		Ct:         attrs.Ct,
		ColorMode:  attrs.ColorMode,
	}

	select {
	case b.changes <- change:
	default:
		logger.Warn().Str("device_id", device.ID).Msg("History queue full, dropping transition")
	}
}

// writeHistory consumes queued transitions and writes them to the backend.
// On stop it drains whatever is still buffered before exiting.
func (b *Bridge) writeHistory(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case change := <-b.changes:
			b.recordTransition(ctx, change)
		case <-b.stop:
			for {
				select {
				case change := <-b.changes:
					b.recordTransition(ctx, change)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) recordTransition(ctx context.Context, change *interfaces.StateChange) {
	if b.history == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, historyWriteTimeout)
	err := b.history.WriteTransition(writeCtx, change)
	cancel()

	if err != nil {
		logger.Debug().Err(err).Str("device_id", change.DeviceID).Msg("History write failed")
	}
}

// onOffLiteral maps the boolean on field to the host's payload literal.
func onOffLiteral(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
