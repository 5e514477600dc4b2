package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BindPolicy decides what happens when only some address families bind.
type BindPolicy string

const (
	// BindStrict aborts the start if any requested family fails to bind.
	BindStrict BindPolicy = "strict"
	// BindDegraded keeps whichever families bound, as long as one did.
	BindDegraded BindPolicy = "degraded"
)

var (
	ErrNoAddressFamily   = errors.New("relay: at least one of ipv4 or ipv6 must be enabled")
	ErrInvalidPort       = errors.New("relay: port must be between 0 and 65535")
	ErrInvalidBindPolicy = errors.New("relay: bind policy must be strict or degraded")
)

// ParseBindPolicy accepts "strict", "degraded" and "" (strict).
func ParseBindPolicy(s string) (BindPolicy, error) {
	switch BindPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BindStrict:
		return BindStrict, nil
	case BindDegraded:
		return BindDegraded, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBindPolicy, s)
	}
}

// SocketConfig describes what a SocketRelay binds.
type SocketConfig struct {
	// Port 0 picks an ephemeral port. With both families enabled, IPv6 binds
	// the port IPv4 was given.
	Port       int
	IPv4       bool
	IPv6       bool
	BindPolicy BindPolicy
	// MaxLineBytes bounds each connection's unterminated line; <= 0 selects
	// DefaultMaxLineBytes.
	MaxLineBytes int
}

func (c SocketConfig) Validate() error {
	if !c.IPv4 && !c.IPv6 {
		return ErrNoAddressFamily
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if _, err := ParseBindPolicy(string(c.BindPolicy)); err != nil {
		return err
	}
	return nil
}

// BindError reports a listener that could not be created.
type BindError struct {
	Network string
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s %s: %v", e.Network, e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

type SocketOptions struct {
	Logger   *slog.Logger
	Signals  *SignalWatcher
	Observer Observer
}

// SocketRelay serves the line protocol to TCP clients. Every connection has
// its own line buffer and receives only the answers to its own lines.
type SocketRelay struct {
	interp Interpreter
	cfg    SocketConfig
	opts   SocketOptions

	mu          sync.Mutex
	state       runState
	serving     bool
	listeners   []net.Listener
	sigCtx      context.Context
	stopSignals context.CancelFunc
	conns       map[string]*connection
	dispatcher  *Dispatcher

	connections sync.WaitGroup
	ready       chan struct{}
	quit        chan struct{}
	drained     chan struct{}
}

func NewSocketRelay(interp Interpreter, cfg SocketConfig, opts SocketOptions) (*SocketRelay, error) {
	if interp == nil {
		return nil, errors.New("relay: interpreter is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BindPolicy, _ = ParseBindPolicy(string(cfg.BindPolicy))
	opts.Logger = loggerOrDefault(opts.Logger)
	opts.Signals = watcherOrDefault(opts.Signals, opts.Logger)
	return &SocketRelay{
		interp:  interp,
		cfg:     cfg,
		opts:    opts,
		conns:   make(map[string]*connection),
		ready:   make(chan struct{}),
		quit:    make(chan struct{}),
		drained: make(chan struct{}),
	}, nil
}

// Start binds the configured listeners and serves until a watched signal
// arrives or ctx is done. Bind failures are returned before anything is
// accepted.
func (r *SocketRelay) Start(ctx context.Context) error {
	if err := r.Listen(ctx); err != nil {
		return err
	}
	return r.Serve(ctx)
}

// Listen binds one listener per enabled address family on the wildcard
// address. Under BindStrict any failure closes what was bound and is
// returned; under BindDegraded failures are logged as long as one family
// bound. Watched signals are captured from here on; one arriving before
// Serve makes Serve return at once.
func (r *SocketRelay) Listen(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.state == stateStopped:
		return ErrRelayStopped
	case r.state == stateRunning:
		return errors.New("socket relay: already listening")
	}

	type family struct{ network, host string }
	var families []family
	if r.cfg.IPv4 {
		families = append(families, family{"tcp4", "0.0.0.0"})
	}
	if r.cfg.IPv6 {
		families = append(families, family{"tcp6", "::"})
	}

	var (
		lc    net.ListenConfig
		bound []net.Listener
		errs  []error
	)
	port := strconv.Itoa(r.cfg.Port)
	for _, f := range families {
		if r.cfg.Port == 0 && len(bound) > 0 {
			port = strconv.Itoa(bound[0].Addr().(*net.TCPAddr).Port)
		}
		addr := net.JoinHostPort(f.host, port)
		l, err := lc.Listen(ctx, f.network, addr)
		if err != nil {
			bindErr := &BindError{Network: f.network, Address: addr, Err: err}
			if r.cfg.BindPolicy != BindDegraded {
				closeListeners(bound)
				return bindErr
			}
			r.opts.Logger.Warn("address family unavailable, continuing without it", "network", f.network, "addr", addr, "err", err)
			errs = append(errs, bindErr)
			continue
		}
		bound = append(bound, l)
	}
	if len(bound) == 0 {
		return errors.Join(errs...)
	}

	r.listeners = bound
	r.sigCtx, r.stopSignals = r.opts.Signals.Context(ctx)
	r.state = stateRunning
	close(r.ready)
	for _, l := range bound {
		r.opts.Logger.Info("socket relay listening", "addr", l.Addr().String())
	}
	return nil
}

// Serve accepts connections on the bound listeners until a watched signal
// arrives, ctx is done or Stop is called. It returns after every connection
// has been closed.
func (r *SocketRelay) Serve(ctx context.Context) error {
	r.mu.Lock()
	if r.state != stateRunning || r.serving {
		r.mu.Unlock()
		if r.state == stateStopped {
			return ErrRelayStopped
		}
		return errors.New("socket relay: not listening")
	}
	r.serving = true
	listeners := append([]net.Listener(nil), r.listeners...)
	sctx, cancel := context.WithCancel(r.sigCtx)
	r.mu.Unlock()
	defer cancel()
	stopAfter := context.AfterFunc(ctx, cancel)
	defer stopAfter()

	d, err := NewDispatcher(r.interp, 0, r.opts.Logger)
	if err != nil {
		r.Stop()
		return err
	}
	if err := d.Start(sctx); err != nil {
		r.Stop()
		return err
	}
	r.mu.Lock()
	r.dispatcher = d
	r.mu.Unlock()

	group, gctx := errgroup.WithContext(sctx)
	for _, l := range listeners {
		group.Go(func() error {
			r.acceptLoop(gctx, l, d)
			return nil
		})
	}
	group.Go(func() error {
		select {
		case <-gctx.Done():
			if sig, ok := Signalled(sctx); ok {
				r.opts.Logger.Info("socket relay shutting down", "signal", SignalName(sig))
			}
			r.Stop()
		case <-r.quit:
		}
		return nil
	})
	err = group.Wait()
	r.Stop()
	d.Stop()
	return err
}

// Stop closes every listener and open connection and waits for the
// connection goroutines to finish. Unflushed replies may be lost. Stop is
// idempotent and a no-op before Listen.
func (r *SocketRelay) Stop() {
	r.mu.Lock()
	switch r.state {
	case stateIdle:
		r.mu.Unlock()
		return
	case stateStopped:
		r.mu.Unlock()
		<-r.drained
		return
	}
	r.state = stateStopped
	close(r.quit)
	listeners := r.listeners
	conns := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	d := r.dispatcher
	stopSignals := r.stopSignals
	r.mu.Unlock()

	if stopSignals != nil {
		stopSignals()
	}
	closeListeners(listeners)
	for _, c := range conns {
		c.close()
	}
	if d != nil {
		d.Stop()
	}
	r.connections.Wait()
	close(r.drained)
	r.opts.Logger.Info("socket relay stopped", "connections_closed", len(conns))
}

// Ready is closed once the listeners are bound.
func (r *SocketRelay) Ready() <-chan struct{} { return r.ready }

// Addrs returns the bound listener addresses, or nil before Listen.
func (r *SocketRelay) Addrs() []net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	addrs := make([]net.Addr, 0, len(r.listeners))
	for _, l := range r.listeners {
		addrs = append(addrs, l.Addr())
	}
	return addrs
}

// ConnectionCount returns the number of open client connections.
func (r *SocketRelay) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *SocketRelay) acceptLoop(ctx context.Context, l net.Listener, d *Dispatcher) {
	var backoff time.Duration
	for {
		nc, err := l.Accept()
		if err != nil {
			select {
			case <-r.quit:
				return
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			r.opts.Logger.Error("accept failed", "addr", l.Addr().String(), "err", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-r.quit:
				return
			}
			continue
		}
		backoff = 0
		r.track(ctx, nc, d)
	}
}

func (r *SocketRelay) track(ctx context.Context, nc net.Conn, d *Dispatcher) {
	id := uuid.NewString()
	remote := nc.RemoteAddr().String()
	c := newConnection(id, nc, r.cfg.MaxLineBytes,
		r.opts.Logger.With("connection_id", id, "remote_addr", remote))

	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		_ = nc.Close()
		return
	}
	r.conns[id] = c
	r.connections.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.connections.Done()
		defer r.untrack(id)
		c.serve(ctx, d, r.opts.Observer)
	}()
}

func (r *SocketRelay) untrack(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

func closeListeners(ls []net.Listener) {
	for _, l := range ls {
		_ = l.Close()
	}
}
