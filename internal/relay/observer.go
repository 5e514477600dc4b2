package relay

import (
	"context"
	"time"
)

// ConsoleChannel names the console in Events.
const ConsoleChannel = "console"

// Event describes one processed command line.
type Event struct {
	// Channel is ConsoleChannel or the socket connection id.
	Channel string
	// Remote is the peer address for socket connections, empty otherwise.
	Remote string
	Line   string
	Result Result
	Time   time.Time
}

// Observer is told about every line a relay has answered. Observe runs on
// the channel's own goroutine after the result is written, so it must not
// block for long.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

func observe(ctx context.Context, o Observer, ev Event) {
	if o == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	o.Observe(ctx, ev)
}
