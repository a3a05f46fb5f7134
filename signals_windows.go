// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build windows

package main

import (
	"github.com/soothill/hue-bridge-emulator/app"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
)

// setupDebugSignalHandlers is a no-op here: SIGUSR1 and SIGUSR2 do not exist
// on Windows. The metrics endpoint exposes the same device state.
func setupDebugSignalHandlers(_ *app.App) {
	logger.Debug().Msg("Debug signals unavailable on this platform")
}
