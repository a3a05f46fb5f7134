// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	bridgeerrors "github.com/soothill/hue-bridge-emulator/pkg/errors"
	"github.com/soothill/hue-bridge-emulator/pkg/interfaces"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
	"github.com/soothill/hue-bridge-emulator/pkg/metrics"
)

const (
	breakerFailureThreshold = 5
	breakerResetTimeout     = 30 * time.Second
	alertTimeout            = 5 * time.Second
)

// AlertNotifier sends alerts when the history backend fails or recovers.
type AlertNotifier interface {
	SendHistoryFailure(ctx context.Context, err error) error
	SendHistoryRecovery(ctx context.Context) error
	IsEnabled() bool
}

// GuardedHistory wraps a history backend with a circuit breaker so a dead
// InfluxDB cannot stall state updates. While the breaker is open, writes are
// dropped and counted; an alert fires on the first trip and on recovery.
type GuardedHistory struct {
	backend  interfaces.HistoryStorage
	breaker  *gobreaker.CircuitBreaker
	notifier AlertNotifier
	tripped  atomic.Bool
}

// NewGuardedHistory wraps a history backend with breaker protection.
// The notifier may be nil.
func NewGuardedHistory(backend interfaces.HistoryStorage, notifier AlertNotifier) *GuardedHistory {
	g := &GuardedHistory{
		backend:  backend,
		notifier: notifier,
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "history",
		Timeout: breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("History circuit breaker state changed")

			switch to {
			case gobreaker.StateOpen:
				g.onTrip()
			case gobreaker.StateClosed:
				g.onRecover()
			}
		},
	})

	return g
}

// WriteTransition writes a transition through the breaker.
func (g *GuardedHistory) WriteTransition(ctx context.Context, change *interfaces.StateChange) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.backend.WriteTransition(ctx, change)
	})
	if err != nil {
		metrics.HistoryWriteErrors.Inc()
		if errors.Is(err, gobreaker.ErrOpenState) {
			return bridgeerrors.ErrCircuitBreakerOpen
		}
		return err
	}

	metrics.HistoryWritesTotal.Inc()
	return nil
}

// Flush flushes the underlying backend.
func (g *GuardedHistory) Flush() {
	g.backend.Flush()
}

// Close closes the underlying backend.
func (g *GuardedHistory) Close() {
	g.backend.Close()
}

// Health checks the underlying backend. A half-open probe succeeding here
// also feeds the breaker back toward closed.
func (g *GuardedHistory) Health(ctx context.Context) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.backend.Health(ctx)
	})
	return err
}

func (g *GuardedHistory) onTrip() {
	if !g.tripped.CompareAndSwap(false, true) {
		return
	}
	if g.notifier == nil || !g.notifier.IsEnabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	if err := g.notifier.SendHistoryFailure(ctx, bridgeerrors.ErrCircuitBreakerOpen); err != nil {
		logger.Error().Err(err).Msg("Failed to send history failure alert")
	}
}

func (g *GuardedHistory) onRecover() {
	if !g.tripped.CompareAndSwap(true, false) {
		return
	}
	if g.notifier == nil || !g.notifier.IsEnabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	if err := g.notifier.SendHistoryRecovery(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to send history recovery alert")
	}
}
