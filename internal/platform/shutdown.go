package platform

import (
	"context"
	"os"
	"os/signal"
)

// NewShutdownContext returns a context canceled when the process is asked to stop.
func NewShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}

// ShutdownSignals lists the signals that cancel a shutdown context.
func ShutdownSignals() []os.Signal {
	signals := make([]os.Signal, len(shutdownSignals))
	copy(signals, shutdownSignals)
	return signals
}
