// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package mqtt links the bridge to the automation host over an MQTT broker.
//
// Outbound state messages go to a shared event topic; per-device relays go
// to a per-label topic under a configurable prefix. Inbound updates arrive
// on a command topic and are handed to the sync bridge.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/soothill/hue-bridge-emulator/config"
	"github.com/soothill/hue-bridge-emulator/pkg/errors"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
	"github.com/soothill/hue-bridge-emulator/syncbridge"
)

const (
	clientID       = "hue-bridge-emulator"
	connectTimeout = 10 * time.Second
	publishQoS     = 0
)

// InboundHandler applies host-originated updates. The sync bridge satisfies it.
type InboundHandler interface {
	ApplyInbound(msg *syncbridge.InboundMessage) error
}

// Link is the MQTT connection to the automation host.
type Link struct {
	client  pahomqtt.Client
	cfg     config.MQTTConfig
	handler InboundHandler
}

// NewLink connects to the broker and subscribes to the command topic.
func NewLink(cfg config.MQTTConfig, handler InboundHandler) (*Link, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)

	l := &Link{cfg: cfg, handler: handler}

	opts.OnConnect = func(client pahomqtt.Client) {
		logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("MQTT connected")
		l.subscribe(client)
	}
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := pahomqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.NewNetworkError("connect broker", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), token.Error())
	}

	l.client = client
	return l, nil
}

// subscribe registers the command-topic handler. Re-run on every reconnect
// because the broker may have dropped the session.
func (l *Link) subscribe(client pahomqtt.Client) {
	token := client.Subscribe(l.cfg.CommandTopic, publishQoS, l.onCommand)
	if token.Wait() && token.Error() != nil {
		logger.Error().Err(token.Error()).Str("topic", l.cfg.CommandTopic).Msg("Failed to subscribe to command topic")
	}
}

// onCommand decodes an inbound host message and applies it to the store.
func (l *Link) onCommand(_ pahomqtt.Client, msg pahomqtt.Message) {
	var inbound syncbridge.InboundMessage
	if err := json.Unmarshal(msg.Payload(), &inbound); err != nil {
		logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed command message")
		return
	}

	if err := l.handler.ApplyInbound(&inbound); err != nil {
		logger.Error().Err(err).Str("device_id", inbound.DeviceID).Msg("Failed to apply inbound update")
	}
}

// PublishState broadcasts a state message on the shared event topic.
func (l *Link) PublishState(msg *syncbridge.OutboundMessage) error {
	return l.publish(l.cfg.EventTopic, msg)
}

// PublishRelay forwards a state message to one device's own topic.
func (l *Link) PublishRelay(label string, msg *syncbridge.OutboundMessage) error {
	return l.publish(l.cfg.DeviceTopicPrefix+"/"+label, msg)
}

func (l *Link) publish(topic string, msg *syncbridge.OutboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.NewSyncError("encode message", msg.DeviceID, err)
	}

	logger.Debug().Str("topic", topic).Str("device_id", msg.DeviceID).Msg("Publishing state message")

	token := l.client.Publish(topic, publishQoS, false, payload)
	token.Wait()
	if token.Error() != nil {
		return errors.NewSyncError("publish message", msg.DeviceID, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (l *Link) Close() {
	if l.client != nil && l.client.IsConnected() {
		l.client.Disconnect(250)
		logger.Info().Msg("MQTT disconnected")
	}
}
