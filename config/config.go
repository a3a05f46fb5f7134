// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the virtual Hue bridge.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Bridge        BridgeConfig        `yaml:"bridge"`
	Devices       []DeviceConfig      `yaml:"devices" validate:"dive"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	History       HistoryConfig       `yaml:"history"`
	Store         StoreConfig         `yaml:"store"`
	Logging       LoggingConfig       `yaml:"logging"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// BridgeConfig holds the bridge identity and listener settings
type BridgeConfig struct {
	ID        string `yaml:"id" validate:"required"`
	HTTPPort  int    `yaml:"http_port" validate:"min=1,max=65535"`
	Advertise bool   `yaml:"advertise"`
}

// DeviceConfig defines one virtual light
type DeviceConfig struct {
	ID    string `yaml:"id" validate:"required"`
	Name  string `yaml:"name" validate:"required"`
	Topic string `yaml:"topic"`
}

// MQTTConfig holds the automation host broker settings
type MQTTConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port" validate:"min=0,max=65535"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	CommandTopic      string `yaml:"command_topic"`
	EventTopic        string `yaml:"event_topic"`
	DeviceTopicPrefix string `yaml:"device_topic_prefix"`
}

// HistoryConfig holds InfluxDB settings for the state transition recorder
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// StoreConfig holds the attribute persistence settings.
// An empty directory selects the in-memory store.
type StoreConfig struct {
	Directory string `yaml:"directory"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NotificationsConfig holds alerting settings
type NotificationsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() {
	if id := os.Getenv("HUE_BRIDGE_ID"); id != "" {
		c.Bridge.ID = id
	}
	if port := os.Getenv("HUE_HTTP_PORT"); port != "" {
		p, parseErr := strconv.Atoi(port)
		if parseErr == nil {
			c.Bridge.HTTPPort = p
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse HUE_HTTP_PORT '%s': %v\n", port, parseErr)
		}
	}
	if host := os.Getenv("MQTT_BROKER_HOST"); host != "" {
		c.MQTT.Host = host
		c.MQTT.Enabled = true
	}
	if port := os.Getenv("MQTT_BROKER_PORT"); port != "" {
		p, parseErr := strconv.Atoi(port)
		if parseErr == nil {
			c.MQTT.Port = p
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse MQTT_BROKER_PORT '%s': %v\n", port, parseErr)
		}
	}
	if user := os.Getenv("MQTT_BROKER_USERNAME"); user != "" {
		c.MQTT.Username = user
	}
	if pass := os.Getenv("MQTT_BROKER_PASSWORD"); pass != "" {
		c.MQTT.Password = pass
	}
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		c.History.URL = url
	}
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		c.History.Token = token
	}
	if org := os.Getenv("INFLUXDB_ORG"); org != "" {
		c.History.Organization = org
	}
	if bucket := os.Getenv("INFLUXDB_BUCKET"); bucket != "" {
		c.History.Bucket = bucket
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		c.Notifications.SlackWebhookURL = webhook
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Bridge.HTTPPort == 0 {
		c.Bridge.HTTPPort = 80
	}
	if c.MQTT.Host == "" {
		c.MQTT.Host = "localhost"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.CommandTopic == "" {
		c.MQTT.CommandTopic = "hue/command"
	}
	if c.MQTT.EventTopic == "" {
		c.MQTT.EventTopic = "hue/state"
	}
	if c.MQTT.DeviceTopicPrefix == "" {
		c.MQTT.DeviceTopicPrefix = "hue/device"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if validateErr := c.validateBridge(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateDevices(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateHistory(); validateErr != nil {
		return validateErr
	}

	return c.validateLogging()
}

// validateBridge validates the bridge identity
func (c *Config) validateBridge() error {
	id := strings.TrimSpace(c.Bridge.ID)
	if id == "" {
		return fmt.Errorf("bridge.id is required")
	}
	if strings.ContainsAny(id, " \t") {
		return fmt.Errorf("bridge.id must not contain whitespace")
	}
	return nil
}

// validateDevices checks that device ids are unique after normalization
func (c *Config) validateDevices() error {
	seen := make(map[string]string, len(c.Devices))
	for _, d := range c.Devices {
		normalized := strings.TrimSpace(strings.ReplaceAll(d.ID, ".", ""))
		if normalized == "" {
			return fmt.Errorf("device %q has an empty id after normalization", d.Name)
		}
		if prev, dup := seen[normalized]; dup {
			return fmt.Errorf("devices %q and %q normalize to the same id %q", prev, d.Name, normalized)
		}
		seen[normalized] = d.Name
	}
	return nil
}

// validateHistory validates the InfluxDB configuration when enabled
func (c *Config) validateHistory() error {
	if !c.History.Enabled {
		return nil
	}

	if c.History.URL == "" {
		return fmt.Errorf("history.url is required when history is enabled")
	}

	parsedURL, parseErr := url.Parse(c.History.URL)
	if parseErr != nil {
		return fmt.Errorf("history.url is not a valid URL: %w", parseErr)
	}

	if securityErr := validateURLSecurity(parsedURL); securityErr != nil {
		return securityErr
	}

	if c.History.Token == "" {
		return fmt.Errorf("history.token is required when history is enabled")
	}
	if len(c.History.Token) < 8 {
		return fmt.Errorf("history.token must be at least 8 characters long")
	}
	if c.History.Organization == "" {
		return fmt.Errorf("history.organization is required when history is enabled")
	}
	if c.History.Bucket == "" {
		return fmt.Errorf("history.bucket is required when history is enabled")
	}

	return nil
}

// validateURLSecurity checks if the URL uses HTTPS for non-local connections
func validateURLSecurity(parsedURL *url.URL) error {
	if parsedURL.Scheme != "http" {
		return nil
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return fmt.Errorf("history.url must use HTTPS for non-local connections (got %s). Using HTTP transmits credentials in plaintext and is a security risk", parsedURL.Scheme)
	}

	return nil
}

// validateLogging validates the logging configuration
func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, fatal, panic")
	}

	return nil
}
