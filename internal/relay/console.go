package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/muesli/cancelreader"
)

// ConsoleOptions configure a ConsoleRelay. Zero values select the process
// standard streams, the default line limit and slog.Default.
type ConsoleOptions struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Prompt, when set, is written to Out once the relay starts and after
	// every batch of answered lines.
	Prompt string

	MaxLineBytes int
	Logger       *slog.Logger
	Signals      *SignalWatcher
	Observer     Observer
}

// ConsoleRelay relays standard input to an Interpreter. Successes go to
// standard output and failures to standard error, one line each.
type ConsoleRelay struct {
	interp Interpreter
	opts   ConsoleOptions

	// mu serialises output with Stop so nothing is written once Stop returns.
	mu         sync.Mutex
	state      runState
	reader     cancelreader.CancelReader
	dispatcher *Dispatcher
	quit       chan struct{}
}

func NewConsoleRelay(interp Interpreter, opts ConsoleOptions) *ConsoleRelay {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	opts.Logger = loggerOrDefault(opts.Logger)
	opts.Signals = watcherOrDefault(opts.Signals, opts.Logger)
	return &ConsoleRelay{interp: interp, opts: opts}
}

// Start reads standard input until a watched signal arrives, ctx is done or
// input ends. Read and decoding errors end the relay and are logged; only
// failures to set up the relay are returned.
func (r *ConsoleRelay) Start(ctx context.Context) error {
	sctx, stopSignals := r.opts.Signals.Context(ctx)
	defer stopSignals()

	reader, err := newCancelReader(r.opts.In, r.opts.Logger)
	if err != nil {
		return fmt.Errorf("console relay: wrap stdin: %w", err)
	}
	d, err := NewDispatcher(r.interp, 0, r.opts.Logger)
	if err != nil {
		reader.Close()
		return fmt.Errorf("console relay: %w", err)
	}

	r.mu.Lock()
	switch r.state {
	case stateRunning:
		r.mu.Unlock()
		reader.Close()
		return errors.New("console relay: already started")
	case stateStopped:
		r.mu.Unlock()
		reader.Close()
		return ErrRelayStopped
	}
	if err := d.Start(sctx); err != nil {
		r.mu.Unlock()
		reader.Close()
		return fmt.Errorf("console relay: %w", err)
	}
	r.state = stateRunning
	r.reader = reader
	r.dispatcher = d
	r.quit = make(chan struct{})
	quit := r.quit
	r.mu.Unlock()

	r.writePrompt()

	readDone := make(chan error, 1)
	go func() {
		defer reader.Close()
		readDone <- r.readLoop(sctx, reader, d)
	}()

	select {
	case <-sctx.Done():
		if sig, ok := Signalled(sctx); ok {
			r.opts.Logger.Info("console relay shutting down", "signal", SignalName(sig))
		}
	case err := <-readDone:
		if err != nil {
			r.opts.Logger.Error("console relay input failed", "err", err)
		} else {
			r.opts.Logger.Debug("console relay input closed")
		}
	case <-quit:
	}
	r.Stop()
	return nil
}

// Stop cancels the pending stdin read and discards any partial line. It is
// idempotent and a no-op before Start.
func (r *ConsoleRelay) Stop() {
	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		return
	}
	r.state = stateStopped
	reader, d := r.reader, r.dispatcher
	close(r.quit)
	r.mu.Unlock()

	// Readers that are not pollable stay blocked until the next input
	// arrives; whatever it carries is discarded.
	reader.Cancel()
	d.Stop()
}

func (r *ConsoleRelay) stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateStopped
}

func (r *ConsoleRelay) readLoop(ctx context.Context, reader io.Reader, d *Dispatcher) error {
	framer := NewLineFramer(r.opts.MaxLineBytes)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			lines, ferr := framer.Feed(buf[:n])
			for _, line := range lines {
				done, perr := r.process(ctx, d, line)
				if perr != nil {
					return perr
				}
				if done {
					return nil
				}
			}
			if len(lines) > 0 {
				r.writePrompt()
			}
			if ferr != nil {
				return fmt.Errorf("read stdin: %w", ferr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, cancelreader.ErrCanceled) || r.stopped() {
				return nil
			}
			return fmt.Errorf("read stdin: %w", err)
		}
	}
}

// process answers one line. done reports that the relay is shutting down and
// reading should end quietly.
func (r *ConsoleRelay) process(ctx context.Context, d *Dispatcher, line string) (done bool, err error) {
	res, err := d.Interpret(ctx, line)
	if err != nil {
		return true, nil
	}

	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		return true, nil
	}
	werr := WriteResult(r.opts.Out, r.opts.Err, res)
	r.mu.Unlock()
	if werr != nil {
		return true, fmt.Errorf("write result: %w", werr)
	}

	observe(ctx, r.opts.Observer, Event{Channel: ConsoleChannel, Line: line, Result: res})
	return false, nil
}

// newCancelReader prefers a reader whose pending Read can be interrupted.
// Descriptors epoll cannot watch, such as regular files redirected to stdin,
// fall back to a reader that only refuses reads after Cancel.
func newCancelReader(in io.Reader, logger *slog.Logger) (cancelreader.CancelReader, error) {
	reader, err := cancelreader.NewReader(in)
	if err == nil {
		return reader, nil
	}
	logger.Debug("stdin is not pollable, reads cannot be interrupted", "err", err)
	return cancelreader.NewReader(struct{ io.Reader }{in})
}

func (r *ConsoleRelay) writePrompt() {
	if r.opts.Prompt == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRunning {
		return
	}
	_, _ = io.WriteString(r.opts.Out, r.opts.Prompt)
}
