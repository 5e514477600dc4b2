package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/antonkrylov/simrelay/internal/audit"
	"github.com/antonkrylov/simrelay/internal/config"
	"github.com/antonkrylov/simrelay/internal/health"
	"github.com/antonkrylov/simrelay/internal/interpreter"
	"github.com/antonkrylov/simrelay/internal/relay"
	"github.com/antonkrylov/simrelay/internal/simulator"
)

const consolePrompt = "simrelay> "

type interactFlags struct {
	port         int
	ipv4         bool
	ipv6         bool
	bindPolicy   string
	maxLineBytes int
	natsURL      string
	transcript   string
	healthListen string
}

func (f *interactFlags) apply(cmd *cobra.Command, o *config.Overrides) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		o.Port = &f.port
	}
	if flags.Changed("ipv4") {
		o.IPv4 = &f.ipv4
	}
	if flags.Changed("ipv6") {
		o.IPv6 = &f.ipv6
	}
	o.BindPolicy = f.bindPolicy
	o.MaxLineBytes = f.maxLineBytes
	o.NATSURL = f.natsURL
	o.Transcript = f.transcript
	o.HealthListen = f.healthListen
}

func newInteractCmd(root *rootOptions) *cobra.Command {
	f := &interactFlags{}
	cmd := &cobra.Command{
		Use:   "interact",
		Short: "Relay commands from stdin, or from TCP clients when --port is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, logger, err := root.resolve(cmd, func(o *config.Overrides) { f.apply(cmd, o) })
			if err != nil {
				return err
			}
			return runInteract(cmd.Context(), cmd, settings, logger)
		},
	}
	cmd.Flags().IntVar(&f.port, "port", 0, "serve TCP clients on this port instead of stdin")
	cmd.Flags().BoolVar(&f.ipv4, "ipv4", true, "listen on IPv4")
	cmd.Flags().BoolVar(&f.ipv6, "ipv6", false, "listen on IPv6")
	cmd.Flags().StringVar(&f.bindPolicy, "bind-policy", "", "strict|degraded: what to do when only some address families bind")
	cmd.Flags().IntVar(&f.maxLineBytes, "max-line-bytes", 0, "longest accepted unterminated line (default 1MiB)")
	cmd.Flags().StringVar(&f.natsURL, "nats-url", "", "publish relay events to this NATS server")
	cmd.Flags().StringVar(&f.transcript, "transcript", "", "write a zstd-compressed event transcript to this file")
	cmd.Flags().StringVar(&f.healthListen, "health-listen", "", "serve gRPC health checks on this address")
	return cmd
}

func runInteract(ctx context.Context, cmd *cobra.Command, settings *config.Settings, logger *slog.Logger) error {
	pool, err := simulator.LoadPool(settings.DeviceSet)
	if err != nil {
		return err
	}
	logger.Debug("device set loaded", "path", settings.DeviceSet, "simulators", len(pool.All()))
	interp := interpreter.New(pool, logger)

	observer, closeAudit, err := openAudit(settings, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	var hs *health.Server
	if settings.HealthListen != "" {
		hs = health.New(health.Config{ListenAddr: settings.HealthListen, Logger: logger})
		if err := hs.Start(ctx); err != nil {
			return err
		}
		defer hs.Stop()
	}
	setServing := func(v bool) {
		if hs != nil {
			hs.SetServing(v)
		}
	}

	out := cmd.OutOrStdout()
	if settings.SocketMode() {
		logger.Info("starting socket relay", "port", settings.Socket.Port, "ipv4", settings.Socket.IPv4, "ipv6", settings.Socket.IPv6)
		r, err := relay.NewSocketRelay(interp, settings.Socket, relay.SocketOptions{Logger: logger, Observer: observer})
		if err != nil {
			return err
		}
		if err := r.Listen(ctx); err != nil {
			return err
		}
		setServing(true)
		err = r.Serve(ctx)
		setServing(false)
		if err != nil {
			return err
		}
		return relay.WriteLine(out, "Ending socket server")
	}

	logger.Info("starting local interactive mode")
	in := cmd.InOrStdin()
	r := relay.NewConsoleRelay(interp, relay.ConsoleOptions{
		In:           in,
		Out:          out,
		Err:          cmd.ErrOrStderr(),
		Prompt:       promptFor(in),
		MaxLineBytes: settings.Socket.MaxLineBytes,
		Logger:       logger,
		Observer:     observer,
	})
	setServing(true)
	err = r.Start(ctx)
	setServing(false)
	if err != nil {
		return err
	}
	return relay.WriteLine(out, "Ending local interactive mode")
}

// promptFor enables the prompt only for an interactive terminal.
func promptFor(in io.Reader) string {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return ""
	}
	return consolePrompt
}

// openAudit builds the configured event sinks. The returned close function
// is always safe to call.
func openAudit(settings *config.Settings, logger *slog.Logger) (relay.Observer, func(), error) {
	var (
		sinks   audit.Multi
		closers []func() error
	)
	closeAll := func() {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		if err := errors.Join(errs...); err != nil {
			logger.Warn("closing audit sinks", "err", err)
		}
	}
	if settings.Audit.NATSURL != "" {
		sink, err := audit.DialNATS(settings.Audit.NATSURL, settings.Audit.Subject, logger)
		if err != nil {
			return nil, closeAll, err
		}
		logger.Info("publishing relay events", "nats_url", settings.Audit.NATSURL, "subject", settings.Audit.Subject)
		sinks = append(sinks, sink)
		closers = append(closers, func() error { sink.Close(); return nil })
	}
	if settings.Audit.Transcript != "" {
		tr, err := audit.OpenTranscript(settings.Audit.Transcript, logger)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		logger.Info("writing transcript", "path", settings.Audit.Transcript)
		sinks = append(sinks, tr)
		closers = append(closers, tr.Close)
	}
	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return sinks, closeAll, nil
}
