package relay

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// WatchedSignals is the fixed set of signals that end a relay. Anything else
// keeps its default disposition.
var WatchedSignals = []os.Signal{syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM}

// SignalError is the cancellation cause of a context ended by a signal.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return "signalled by " + SignalName(e.Signal)
}

// SignalWatcher turns the first watched signal into a cancelled context.
//
// Registration is scoped to each Context call and released as soon as the
// first signal arrives or the context ends, so sequential relays each get a
// fresh registration. Notify and Stop default to os/signal and exist so
// tests can deliver signals without touching process state.
type SignalWatcher struct {
	Logger *slog.Logger
	Notify func(c chan<- os.Signal, sig ...os.Signal)
	Stop   func(c chan<- os.Signal)
}

func NewSignalWatcher(logger *slog.Logger) *SignalWatcher {
	return &SignalWatcher{Logger: logger}
}

func (w *SignalWatcher) logger() *slog.Logger {
	if w != nil && w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func (w *SignalWatcher) notify(c chan<- os.Signal, sig ...os.Signal) {
	if w != nil && w.Notify != nil {
		w.Notify(c, sig...)
		return
	}
	signal.Notify(c, sig...)
}

func (w *SignalWatcher) stop(c chan<- os.Signal) {
	if w != nil && w.Stop != nil {
		w.Stop(c)
		return
	}
	signal.Stop(c)
}

// Context returns a context that is cancelled by the first watched signal,
// with a *SignalError cause, or when parent is done. The returned stop
// function cancels the context and waits until the signal registration has
// been released.
func (w *SignalWatcher) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	ch := make(chan os.Signal, 1)
	w.notify(ch, WatchedSignals...)

	released := make(chan struct{})
	var once sync.Once
	release := func() {
		once.Do(func() {
			w.stop(ch)
			close(released)
		})
	}

	go func() {
		select {
		case sig := <-ch:
			w.logger().Info("signalled", "signal", SignalName(sig))
			release()
			cancel(&SignalError{Signal: sig})
		case <-ctx.Done():
			release()
		}
	}()

	return ctx, func() {
		cancel(context.Canceled)
		<-released
	}
}

// RunUntilSignalled blocks until a watched signal arrives or ctx is done. It
// returns the signal, or nil when ctx ended first.
func (w *SignalWatcher) RunUntilSignalled(ctx context.Context) os.Signal {
	sctx, stop := w.Context(ctx)
	defer stop()
	<-sctx.Done()
	sig, _ := Signalled(sctx)
	return sig
}

// Signalled reports the signal that cancelled ctx, if any.
func Signalled(ctx context.Context) (os.Signal, bool) {
	var se *SignalError
	if errors.As(context.Cause(ctx), &se) {
		return se.Signal, true
	}
	return nil, false
}

// SignalName returns the conventional SIG* name for the watched signals.
func SignalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGTERM:
		return "SIGTERM"
	case nil:
		return ""
	default:
		return sig.String()
	}
}
