// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soothill/hue-bridge-emulator/pkg/logger"
)

// Watcher re-reads the bridge configuration when the process receives SIGHUP
// and hands the result to the application over the updates channel. The
// application applies the device list, log level and webhook URL; listener
// ports and bridge identity stay fixed for the process lifetime.
type Watcher struct {
	path    string
	updates chan<- *Config
	sighup  chan os.Signal
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, updates chan<- *Config) *Watcher {
	return &Watcher{
		path:    path,
		updates: updates,
		sighup:  make(chan os.Signal, 1),
	}
}

// Start installs the SIGHUP handler and begins watching.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	signal.Notify(w.sighup, syscall.SIGHUP)

	go w.watch(ctx)
}

// Stop removes the SIGHUP handler and stops the watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	signal.Stop(w.sighup)
}

func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.sighup:
			logger.Info().Str("path", w.path).Msg("Reloading configuration on SIGHUP")
			cfg, err := Load(w.path)
			if err != nil {
				logger.Error().Err(err).Msg("Configuration reload failed, keeping current config")
				continue
			}
			w.updates <- cfg
			logger.Info().Int("devices", len(cfg.Devices)).Msg("Configuration reloaded")
		}
	}
}
