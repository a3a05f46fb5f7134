// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/soothill/hue-bridge-emulator/app"
)

// setupDebugSignalHandlers installs the Unix debugging hooks. SIGUSR1 logs
// the device registry and every stored attribute record; SIGUSR2 logs
// goroutine stack traces.
//
//	kill -USR1 <pid>
//	kill -USR2 <pid>
func setupDebugSignalHandlers(application *app.App) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGUSR1:
				application.DumpApplicationState()
			case syscall.SIGUSR2:
				app.DumpGoroutineStackTraces()
			}
		}
	}()
}
