// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
)

// Notifier delivers operational alerts (discovery bind failures, history
// backend outages) to an external channel such as a Slack webhook.
type Notifier interface {
	// SendAlert delivers one alert with a severity level, title and body.
	SendAlert(ctx context.Context, level, title, message string) error
	// IsEnabled reports whether a delivery channel is configured.
	IsEnabled() bool
}
