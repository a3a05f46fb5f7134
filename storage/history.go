// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/soothill/hue-bridge-emulator/pkg/interfaces"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
)

// HistoryRecorder writes committed state transitions to InfluxDB.
// Writes are asynchronous and batched by the client's write API.
type HistoryRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	org      string
}

// NewHistoryRecorder creates a recorder and verifies the connection.
func NewHistoryRecorder(url, token, org, bucket string) (*HistoryRecorder, error) {
	client := influxdb2.NewClient(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", message)
	}

	logger.Info().Str("url", url).Str("status", string(health.Status)).Msg("Connected to InfluxDB")

	writeAPI := client.WriteAPI(org, bucket)

	// Handle async write errors
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error().Err(err).Msg("InfluxDB write error")
		}
	}()

	return &HistoryRecorder{
		client:   client,
		writeAPI: writeAPI,
		bucket:   bucket,
		org:      org,
	}, nil
}

// WriteTransition writes a single state transition to InfluxDB.
func (s *HistoryRecorder) WriteTransition(_ context.Context, change *interfaces.StateChange) error {
	if change == nil {
		return fmt.Errorf("state change cannot be nil")
	}
	if change.DeviceID == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if change.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}

	p := influxdb2.NewPoint(
		"light_state",
		map[string]string{
			"device_id":   change.DeviceID,
			"device_name": change.DeviceName,
			"colormode":   change.ColorMode,
			"source":      change.Source,
		},
		map[string]interface{}{
			"on":  change.On,
			"bri": change.Bri,
			"hue": change.Hue,
			"sat": change.Sat,
			"ct":  change.Ct,
		},
		change.Timestamp,
	)

	s.writeAPI.WritePoint(p)
	return nil
}

// Flush forces all pending writes to complete.
func (s *HistoryRecorder) Flush() {
	s.writeAPI.Flush()
}

// Close closes the InfluxDB client and flushes pending writes.
func (s *HistoryRecorder) Close() {
	logger.Info().Msg("Closing InfluxDB connection")
	s.writeAPI.Flush()
	s.client.Close()
}

// Health checks if InfluxDB is reachable and healthy.
func (s *HistoryRecorder) Health(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if health.Status != "pass" {
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return fmt.Errorf("InfluxDB unhealthy: %s", message)
	}
	return nil
}

// QueryLastTransition retrieves the most recent recorded transition for a device.
func (s *HistoryRecorder) QueryLastTransition(ctx context.Context, deviceID string) (*interfaces.StateChange, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device ID cannot be empty")
	}

	queryAPI := s.client.QueryAPI(s.org)

	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -24h)
			|> filter(fn: (r) => r._measurement == "light_state")
			|> filter(fn: (r) => r.device_id == "%s")
			|> last()
	`, sanitizeFluxString(s.bucket), sanitizeFluxString(deviceID))

	result, err := queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	change := &interfaces.StateChange{
		DeviceID: deviceID,
	}

	for result.Next() {
		record := result.Record()

		if name, ok := record.ValueByKey("device_name").(string); ok {
			change.DeviceName = name
		}
		if mode, ok := record.ValueByKey("colormode").(string); ok {
			change.ColorMode = mode
		}
		if source, ok := record.ValueByKey("source").(string); ok {
			change.Source = source
		}

		change.Timestamp = record.Time()

		switch record.Field() {
		case "on":
			if val, ok := record.Value().(bool); ok {
				change.On = val
			}
		case "bri":
			if val, ok := record.Value().(int64); ok {
				change.Bri = int(val)
			}
		case "hue":
			if val, ok := record.Value().(int64); ok {
				change.Hue = int(val)
			}
		case "sat":
			if val, ok := record.Value().(int64); ok {
				change.Sat = int(val)
			}
		case "ct":
			if val, ok := record.Value().(int64); ok {
				change.Ct = int(val)
			}
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	return change, nil
}

const maxFluxStringLength = 1000

// sanitizeFluxString escapes a value for embedding in a Flux string literal.
// Device ids come off the wire, so quotes, backslashes and control characters
// must not be able to break out of the string context.
func sanitizeFluxString(s string) string {
	if len(s) > maxFluxStringLength {
		s = s[:maxFluxStringLength]
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
