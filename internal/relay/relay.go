// Package relay bridges line-oriented byte transports to a command
// interpreter and writes each result back to the channel that sent the line.
//
// Two transports exist: ConsoleRelay reads standard input and answers on
// standard output (successes) and standard error (failures); SocketRelay
// accepts TCP clients on IPv4 and/or IPv6 and answers each client on its own
// connection. Both implement Relay: Start blocks servicing I/O until a
// watched signal (SIGINT, SIGHUP, SIGTERM) arrives or its context ends, and
// then calls Stop, which releases every reader, listener and connection.
//
// Interpreter calls from all channels of a relay are funnelled through a
// single Dispatcher goroutine. Within one channel results are written in the
// order the lines arrived; across socket connections no order is implied.
package relay

import (
	"context"
	"errors"
	"log/slog"
)

// ErrRelayStopped is returned by Start on a relay that has already been
// stopped. Relays are single-use.
var ErrRelayStopped = errors.New("relay: already stopped")

// Relay is the lifecycle shared by the console and socket transports.
type Relay interface {
	// Start services I/O until a watched signal arrives or ctx is done, then
	// stops the relay. Only startup failures are returned.
	Start(ctx context.Context) error
	// Stop releases all I/O resources. It is idempotent and a no-op on a
	// relay that was never started.
	Stop()
}

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func watcherOrDefault(w *SignalWatcher, logger *slog.Logger) *SignalWatcher {
	if w != nil {
		return w
	}
	return NewSignalWatcher(logger)
}
