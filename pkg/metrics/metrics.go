// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the virtual Hue bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BridgeOnline indicates whether the HTTP and SSDP listeners are up
	BridgeOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hue_bridge_online",
		Help: "Whether the bridge HTTP and SSDP listeners are running (1) or failed (0)",
	})

	// SearchRequestsTotal tracks valid SSDP search requests received
	SearchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hue_ssdp_search_requests_total",
		Help: "Total number of valid SSDP search requests received",
	})

	// InvalidSearchRequests tracks dropped discovery packets
	InvalidSearchRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hue_ssdp_invalid_requests_total",
		Help: "Total number of discovery packets dropped as invalid",
	})

	// SearchResponsesTotal tracks unicast SSDP responses sent
	SearchResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hue_ssdp_search_responses_total",
		Help: "Total number of unicast SSDP responses sent",
	})

	// APIRequestsTotal tracks Hue REST API requests by endpoint and method
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hue_api_requests_total",
		Help: "Total number of Hue REST API requests",
	}, []string{"endpoint", "method"})

	// StateUpdatesTotal tracks attribute store writes by source
	StateUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hue_state_updates_total",
		Help: "Total number of device attribute updates applied",
	}, []string{"source"})

	// SyncMessagesOutTotal tracks messages emitted to the automation host
	SyncMessagesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hue_sync_messages_out_total",
		Help: "Total number of state messages emitted to the automation host",
	})

	// SyncMessagesInTotal tracks inbound messages applied from the host
	SyncMessagesInTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hue_sync_messages_in_total",
		Help: "Total number of inbound host messages applied to the store",
	})

	// HistoryWritesTotal tracks state transitions recorded to InfluxDB
	HistoryWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hue_history_writes_total",
		Help: "Total number of state transitions written to InfluxDB",
	})

	// HistoryWriteErrors tracks failed history writes
	HistoryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hue_history_write_errors_total",
		Help: "Total number of failed history writes",
	})

	// SearchResponseDelay tracks the scheduled delay of SSDP responses
	SearchResponseDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hue_ssdp_response_delay_seconds",
		Help:    "Delay between search receipt and unicast response send",
		Buckets: []float64{1.5, 1.6, 1.7, 1.8, 1.9, 2.0, 2.5},
	})

	// DeviceOn tracks the current on/off state per device
	DeviceOn = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hue_device_on",
		Help: "Current on/off state per virtual device (1=on, 0=off)",
	}, []string{"device_id", "device_name"})

	// DeviceBrightness tracks the current brightness per device
	DeviceBrightness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hue_device_brightness",
		Help: "Current brightness (0-254) per virtual device",
	}, []string{"device_id", "device_name"})
)
