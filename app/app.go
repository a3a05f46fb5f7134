// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package app wires the bridge components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/soothill/hue-bridge-emulator/config"
	"github.com/soothill/hue-bridge-emulator/discovery"
	"github.com/soothill/hue-bridge-emulator/hueapi"
	"github.com/soothill/hue-bridge-emulator/mqtt"
	"github.com/soothill/hue-bridge-emulator/pkg/interfaces"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
	"github.com/soothill/hue-bridge-emulator/pkg/metrics"
	"github.com/soothill/hue-bridge-emulator/pkg/slacknotifier"
	"github.com/soothill/hue-bridge-emulator/registry"
	"github.com/soothill/hue-bridge-emulator/state"
	"github.com/soothill/hue-bridge-emulator/storage"
	"github.com/soothill/hue-bridge-emulator/syncbridge"
)

const (
	signalChannelSize     = 1
	alertContextTimeout   = 5 * time.Second
	readinessCheckTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
	flushTimeout          = 10 * time.Second
)

// App represents the running bridge.
type App struct {
	cfg         *config.Config
	metricsPort string

	registry   *registry.Registry
	store      *state.Store
	apiServer  *hueapi.Server
	responder  *discovery.Responder
	advertiser *discovery.Advertiser
	bridge     *syncbridge.Bridge
	link       *mqtt.Link
	history    interfaces.HistoryStorage
	notifier   *slacknotifier.Notifier

	metricsServer *http.Server
	configWatcher *config.Watcher
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// New assembles the application from configuration.
func New(cfg *config.Config, metricsPort string, configWatcher *config.Watcher) (*App, error) {
	a := &App{
		cfg:           cfg,
		metricsPort:   metricsPort,
		configWatcher: configWatcher,
	}

	if err := a.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return a, nil
}

// initializeComponents builds the component graph bottom-up.
func (a *App) initializeComponents() error {
	a.notifier = slacknotifier.New(a.cfg.Notifications.SlackWebhookURL)
	if a.notifier.IsEnabled() {
		logger.Info().Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack notifications disabled (no webhook URL configured)")
	}
	adapter := slacknotifier.NewAdapter(a.notifier)

	// Attribute persistence: file-backed when a directory is configured,
	// in-memory otherwise.
	var kv interfaces.KeyValueStore
	if a.cfg.Store.Directory != "" {
		fileStore, err := storage.NewFileStore(a.cfg.Store.Directory)
		if err != nil {
			return fmt.Errorf("failed to initialize file store: %w", err)
		}
		kv = fileStore
	} else {
		logger.Info().Msg("Using in-memory attribute store")
		kv = storage.NewMemoryStore()
	}
	a.store = state.NewStore(kv)

	a.registry = registry.New(devicesFromConfig(a.cfg))
	logger.Info().Int("devices", a.registry.Count()).Msg("Device registry loaded")

	if a.cfg.History.Enabled {
		recorder, err := storage.NewHistoryRecorder(
			a.cfg.History.URL,
			a.cfg.History.Token,
			a.cfg.History.Organization,
			a.cfg.History.Bucket,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize history recorder: %w", err)
		}
		a.history = storage.NewGuardedHistory(recorder, adapter)
	}

	a.bridge = syncbridge.New(a.store, a.registry, nil, a.history)

	if a.cfg.MQTT.Enabled {
		link, err := mqtt.NewLink(a.cfg.MQTT, a.bridge)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		a.link = link
		a.bridge.SetPublisher(link)
	} else {
		logger.Info().Msg("MQTT host link disabled")
	}

	hubID := discovery.HubID(a.cfg.Bridge.ID)
	a.apiServer = hueapi.NewServer(hubID, a.cfg.Bridge.HTTPPort, a.registry, a.store, a.bridge)
	a.responder = discovery.NewResponder(a.cfg.Bridge.ID, a.cfg.Bridge.HTTPPort)

	a.metricsServer = a.buildMetricsServer()

	return nil
}

// Run starts every listener and blocks until shutdown.
func (a *App) Run(configChan <-chan *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.configWatcher.Start(ctx)
	defer a.configWatcher.Stop()

	a.startMetricsServer()
	a.setupSignalHandler()
	a.startConfigWatcher(configChan)
	a.bridge.Start(ctx)

	if err := a.responder.Start(ctx); err != nil {
		metrics.BridgeOnline.Set(0)
		a.reportBindFailure("SSDP", err)
		return err
	}

	if err := a.apiServer.Start(); err != nil {
		metrics.BridgeOnline.Set(0)
		a.reportBindFailure("HTTP API", err)
		a.responder.Stop()
		return err
	}

	if a.cfg.Bridge.Advertise {
		advertiser, err := discovery.NewAdvertiser(a.cfg.Bridge.ID, a.cfg.Bridge.HTTPPort)
		if err != nil {
			// mDNS is a secondary discovery path; SSDP keeps working without it.
			logger.Warn().Err(err).Msg("mDNS advertisement unavailable")
		} else {
			a.advertiser = advertiser
		}
	}

	metrics.BridgeOnline.Set(1)
	logger.Info().
		Str("hub_id", discovery.HubID(a.cfg.Bridge.ID)).
		Int("http_port", a.cfg.Bridge.HTTPPort).
		Msg("Bridge online")

	<-ctx.Done()
	a.performCleanup()
	return nil
}

// buildMetricsServer assembles the localhost-only metrics and health server.
func (a *App) buildMetricsServer() *http.Server {
	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, a.history)
	}))

	return &http.Server{
		Addr:    "localhost:" + a.metricsPort,
		Handler: mux,
	}
}

// startMetricsServer starts the HTTP server for metrics and health checks.
func (a *App) startMetricsServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.metricsServer.Addr).Msg("Starting metrics and health check server (localhost only)")
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// setupSignalHandler sets up graceful shutdown on interrupt signals.
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.performGracefulShutdown()
	}()
}

// startConfigWatcher applies reloaded configurations.
func (a *App) startConfigWatcher(configChan <-chan *config.Config) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config watcher goroutine shutting down")
				return
			case newCfg := <-configChan:
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// UpdateConfig applies a reloaded configuration. Listener addresses and the
// bridge identity are fixed for the process lifetime; only the device set,
// log level and webhook are hot-swappable.
func (a *App) UpdateConfig(newCfg *config.Config) {
	a.cfg = newCfg

	a.registry.Replace(devicesFromConfig(newCfg))
	a.notifier.UpdateWebhookURL(newCfg.Notifications.SlackWebhookURL)
	logger.Initialize(newCfg.Logging.Level)

	logger.Info().Int("devices", a.registry.Count()).Msg("Application configuration updated")
}

// performGracefulShutdown stops accepting new work and cancels the run loop.
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}
	if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Metrics server shutdown error")
	}

	a.responder.Stop()
	if a.advertiser != nil {
		a.advertiser.Stop()
	}
	if a.link != nil {
		a.link.Close()
	}
	a.configWatcher.Stop()
	a.cancel()
}

// performCleanup drains the sync bridge and waits for goroutines to finish.
func (a *App) performCleanup() {
	flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
	defer flushCancel()

	flushDone := make(chan struct{})
	go func() {
		a.bridge.Stop()
		if a.history != nil {
			a.history.Close()
		}
		close(flushDone)
	}()

	select {
	case <-flushDone:
		logger.Info().Msg("History flush completed")
	case <-flushCtx.Done():
		logger.Warn().Msg("History flush timeout - some transitions may be lost")
	}

	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()
	logger.Info().Msg("All goroutines finished, exiting")
}

// reportBindFailure logs a startup bind failure and alerts the operator.
func (a *App) reportBindFailure(listener string, err error) {
	logger.Error().Err(err).Str("listener", listener).Msg("Listener failed to start")

	if a.notifier == nil || !a.notifier.IsEnabled() {
		return
	}

	adapter := slacknotifier.NewAdapter(a.notifier)
	alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
	defer alertCancel()
	if notifyErr := adapter.SendBindFailure(alertCtx, listener, err); notifyErr != nil {
		logger.Error().Err(notifyErr).Msg("Failed to send bind failure alert")
	}
}

// DumpApplicationState dumps current application state to logs.
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	devices := a.registry.List()
	logger.Info().Int("devices", len(devices)).Msg("Registry state")

	for _, device := range devices {
		attrs := a.store.Get(device.ID)
		logger.Info().
			Str("device_id", device.ID).
			Str("device_name", device.Name).
			Bool("on", attrs.On).
			Int("bri", attrs.Bri).
			Str("colormode", attrs.ColorMode).
			Msg("Device state")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs.
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024) // 1MB buffer
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// devicesFromConfig maps configured device definitions to registry entries.
func devicesFromConfig(cfg *config.Config) []interfaces.Device {
	devices := make([]interfaces.Device, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, interfaces.Device{
			ID:    d.ID,
			Name:  d.Name,
			Topic: d.Topic,
		})
	}
	return devices
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting.
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests.
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler reports ready unless a configured history backend
// is unhealthy. Without history there is no external dependency to probe.
func readinessCheckHandler(w http.ResponseWriter, _ *http.Request, history interfaces.HistoryStorage) {
	if history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
		defer cancel()

		if err := history.Health(ctx); err != nil {
			logger.Warn().Err(err).Msg("Readiness check failed: history backend unhealthy")
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, writeErr := w.Write([]byte("NOT READY: history backend unhealthy")); writeErr != nil {
				logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
			}
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}
