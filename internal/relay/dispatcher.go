package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrDispatcherNotStarted = errors.New("dispatcher: not started")
	ErrDispatcherStopped    = errors.New("dispatcher: stopped")
)

type dispatchRequest struct {
	ctx   context.Context
	line  string
	reply chan Result
}

// Dispatcher runs every Interpret call on one goroutine, so the interpreter
// and whatever backend it wraps never see concurrent calls. Callers block for
// their own result, which keeps each channel's results in submission order.
type Dispatcher struct {
	interp Interpreter
	logger *slog.Logger
	queue  chan dispatchRequest

	started  atomic.Bool
	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// NewDispatcher creates a Dispatcher for interp. queueSize <= 0 selects an
// unbuffered queue.
func NewDispatcher(interp Interpreter, queueSize int, logger *slog.Logger) (*Dispatcher, error) {
	if interp == nil {
		return nil, errors.New("dispatcher: interpreter is required")
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		interp: interp,
		logger: logger,
		queue:  make(chan dispatchRequest, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the dispatch goroutine. It must be called once.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher: start called multiple times")
	}
	go d.run(ctx)
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("dispatcher context done", "err", ctx.Err())
			return
		case <-d.quit:
			return
		case req := <-d.queue:
			req.reply <- d.call(req.ctx, req.line)
		}
	}
}

func (d *Dispatcher) call(ctx context.Context, line string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("interpreter panic", "line", line, "panic", p)
			res = Failure(fmt.Sprintf("internal error: %v", p))
		}
	}()
	return d.interp.Interpret(ctx, line)
}

// Interpret hands line to the dispatch goroutine and waits for its result.
func (d *Dispatcher) Interpret(ctx context.Context, line string) (Result, error) {
	if !d.started.Load() {
		return Result{}, ErrDispatcherNotStarted
	}
	req := dispatchRequest{ctx: ctx, line: line, reply: make(chan Result, 1)}
	select {
	case d.queue <- req:
	case <-d.done:
		return Result{}, ErrDispatcherStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-d.done:
		// The goroutine may have answered just before exiting.
		select {
		case res := <-req.reply:
			return res, nil
		default:
			return Result{}, ErrDispatcherStopped
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop ends the dispatch goroutine after the call in progress, if any. It is
// safe to call more than once and before Start.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.quit) })
	if d.started.Load() {
		<-d.done
	}
}
