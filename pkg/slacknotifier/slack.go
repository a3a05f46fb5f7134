// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package slacknotifier provides a simple client for sending notifications to Slack
// via Incoming Webhooks.
//
// It supports basic text messages and formatted attachments with severity levels.
// Notification failures are logged by callers but never block the bridge: a
// disabled notifier (empty webhook URL) skips sending silently.
package slacknotifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier sends notifications to Slack via webhook
type Notifier struct {
	webhookURL string
	client     *http.Client
	enabled    bool
}

// Message represents a Slack webhook message payload
type Message struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack attachment
type Attachment struct {
	Color  string `json:"color,omitempty"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
	Ts     int64  `json:"ts,omitempty"`
}

// New creates a new Slack notifier
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		enabled: webhookURL != "",
	}
}

// IsEnabled returns whether Slack notifications are enabled
func (s *Notifier) IsEnabled() bool {
	return s.enabled
}

// UpdateWebhookURL updates the webhook URL for the notifier.
func (s *Notifier) UpdateWebhookURL(webhookURL string) {
	s.webhookURL = webhookURL
	s.enabled = webhookURL != ""
}

// SendMessage sends a simple text message to Slack
func (s *Notifier) SendMessage(ctx context.Context, message string) error {
	if !s.enabled {
		return nil
	}

	return s.sendPayload(ctx, Message{Text: message})
}

// SendAlert sends a formatted alert to Slack
func (s *Notifier) SendAlert(ctx context.Context, severity, title, message string) error {
	if !s.enabled {
		return nil
	}

	payload := Message{
		Attachments: []Attachment{
			{
				Color:  severityToColor(severity),
				Title:  title,
				Text:   message,
				Footer: "Hue Bridge Emulator",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return s.sendPayload(ctx, payload)
}

// sendPayload sends a payload to the Slack webhook
func (s *Notifier) sendPayload(ctx context.Context, payload Message) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// severityToColor maps severity levels to Slack colors
func severityToColor(severity string) string {
	switch severity {
	case "danger", "error":
		return "danger" // Red
	case "warning", "warn":
		return "warning" // Yellow
	case "good", "success":
		return "good" // Green
	default:
		return "#808080" // Gray
	}
}
