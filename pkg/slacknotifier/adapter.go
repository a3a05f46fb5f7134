// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package slacknotifier

import (
	"context"
	"fmt"
)

// Adapter wraps a Notifier with bridge-specific alert helpers.
type Adapter struct {
	notifier *Notifier
}

// NewAdapter creates a new adapter.
func NewAdapter(notifier *Notifier) *Adapter {
	return &Adapter{notifier: notifier}
}

// SendAlert forwards a generic alert to the underlying notifier.
func (a *Adapter) SendAlert(ctx context.Context, level, title, message string) error {
	return a.notifier.SendAlert(ctx, level, title, message)
}

// SendBindFailure sends an alert when a listener cannot bind its port.
func (a *Adapter) SendBindFailure(ctx context.Context, listener string, err error) error {
	return a.notifier.SendAlert(ctx, "danger", "⚠️ Bridge Listener Failure",
		fmt.Sprintf("The %s listener failed to start: %v\nThe bridge is not discoverable until redeployed.", listener, err))
}

// SendHistoryFailure sends an alert when the history backend trips the breaker.
func (a *Adapter) SendHistoryFailure(ctx context.Context, err error) error {
	return a.notifier.SendAlert(ctx, "danger", "⚠️ State History Unavailable",
		fmt.Sprintf("Failed to write state transitions to InfluxDB: %v\nRecording is suspended until the backend recovers.", err))
}

// SendHistoryRecovery sends an alert when the history backend recovers.
func (a *Adapter) SendHistoryRecovery(ctx context.Context) error {
	return a.notifier.SendAlert(ctx, "good", "✅ State History Restored",
		"Connection to InfluxDB has been restored. State transitions are being recorded again.")
}

// IsEnabled returns whether Slack notifications are enabled
func (a *Adapter) IsEnabled() bool {
	return a.notifier.IsEnabled()
}
