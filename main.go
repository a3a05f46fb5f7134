// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/soothill/hue-bridge-emulator/app"
	"github.com/soothill/hue-bridge-emulator/config"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	metricsPort := flag.String("metrics-port", "9090", "Port for Prometheus metrics endpoint")
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*metricsPort))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Logging.Level)

	logger.Info().Msg("Starting Hue Bridge Emulator")
	logger.Info().
		Str("bridge_id", cfg.Bridge.ID).
		Int("http_port", cfg.Bridge.HTTPPort).
		Int("devices", len(cfg.Devices)).
		Bool("mqtt", cfg.MQTT.Enabled).
		Bool("history", cfg.History.Enabled).
		Msg("Configuration loaded")

	configChan := make(chan *config.Config)
	configWatcher := config.NewWatcher(*configPath, configChan)

	application, err := app.New(cfg, *metricsPort, configWatcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	setupDebugSignalHandlers(application)

	if err := application.Run(configChan); err != nil {
		logger.Fatal().Err(err).Msg("Application failed")
	}
}

// performHealthCheck probes the local health endpoint and returns an exit code.
// Intended for container health checks.
func performHealthCheck(metricsPort string) int {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:" + metricsPort + "/ready")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("Health check passed")
	return 0
}

// performConfigValidation validates the configuration file and returns an exit code.
func performConfigValidation(configPath string) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return 1
	}

	fmt.Println("\n✅ Configuration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Bridge ID: %s\n", cfg.Bridge.ID)
	fmt.Printf("  HTTP Port: %d\n", cfg.Bridge.HTTPPort)
	fmt.Printf("  mDNS Advertise: %t\n", cfg.Bridge.Advertise)
	fmt.Printf("  Devices: %d\n", len(cfg.Devices))
	fmt.Printf("  Log Level: %s\n", cfg.Logging.Level)

	if cfg.MQTT.Enabled {
		fmt.Printf("  MQTT Broker: %s:%d\n", cfg.MQTT.Host, cfg.MQTT.Port)
		fmt.Printf("  Command Topic: %s\n", cfg.MQTT.CommandTopic)
		fmt.Printf("  Event Topic: %s\n", cfg.MQTT.EventTopic)
	} else {
		fmt.Println("  MQTT: Disabled")
	}

	if cfg.History.Enabled {
		fmt.Printf("  History URL: %s\n", cfg.History.URL)
		fmt.Printf("  History Organization: %s\n", cfg.History.Organization)
		fmt.Printf("  History Bucket: %s\n", cfg.History.Bucket)
	} else {
		fmt.Println("  History: Disabled")
	}

	if cfg.Store.Directory != "" {
		fmt.Printf("  Store Directory: %s\n", cfg.Store.Directory)
	} else {
		fmt.Println("  Store: In-memory")
	}

	if cfg.Notifications.SlackWebhookURL != "" {
		fmt.Println("  Slack Notifications: Enabled")
	} else {
		fmt.Println("  Slack Notifications: Disabled")
	}

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return 0
}
