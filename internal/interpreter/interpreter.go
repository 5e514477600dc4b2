// Package interpreter turns command lines into simulator operations and
// reports the outcome as a relay Result.
package interpreter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/antonkrylov/simrelay/internal/relay"
	"github.com/antonkrylov/simrelay/internal/simulator"
)

var ErrEmptyCommand = errors.New("empty command")

// Interpreter executes list, boot, shutdown, diagnose and help against a
// simulator pool. It is safe to share between relays; every call parses
// with a fresh command tree.
type Interpreter struct {
	pool   *simulator.Pool
	logger *slog.Logger
}

func New(pool *simulator.Pool, logger *slog.Logger) *Interpreter {
	if pool == nil {
		pool = simulator.NewPool()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{pool: pool, logger: logger}
}

// Interpret tokenises line shell-style and runs it.
func (i *Interpreter) Interpret(ctx context.Context, line string) relay.Result {
	args, err := shlex.Split(line)
	if err != nil {
		return relay.Failure(fmt.Sprintf("parse %q: %v", line, err))
	}
	if len(args) == 0 {
		return relay.Failure(ErrEmptyCommand.Error())
	}
	return i.InterpretArgs(ctx, args)
}

// InterpretArgs runs an already tokenised command.
func (i *Interpreter) InterpretArgs(ctx context.Context, args []string) relay.Result {
	if len(args) == 0 {
		return relay.Failure(ErrEmptyCommand.Error())
	}
	var out bytes.Buffer
	root := i.newRoot()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))

	if err := root.ExecuteContext(ctx); err != nil {
		i.logger.Debug("command failed", "command", args[0], "err", err)
		return relay.Failure(err.Error())
	}
	i.logger.Debug("command succeeded", "command", args[0])
	return relay.Success(strings.TrimRight(out.String(), "\n"))
}

// Commands lists the top-level command names.
func (i *Interpreter) Commands() []string {
	var names []string
	for _, c := range i.newRoot().Commands() {
		names = append(names, c.Name())
	}
	return append(names, "help")
}

func (i *Interpreter) newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "simrelay",
		Short:         "Drive simulators from a command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		i.listCmd(),
		i.stateCmd("boot", "Boot matching simulators", i.pool.Boot),
		i.stateCmd("shutdown", "Shut down matching simulators", i.pool.Shutdown),
		i.diagnoseCmd(),
	)
	return root
}
