package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/simrelay/internal/interpreter"
	"github.com/antonkrylov/simrelay/internal/relay"
	"github.com/antonkrylov/simrelay/internal/simulator"
)

var oneShotShort = map[string]string{
	"list":     "List simulators",
	"boot":     "Boot matching simulators",
	"shutdown": "Shut down matching simulators",
	"diagnose": "Show diagnostic files for simulators",
}

// newOneShotCmds exposes every interpreter command directly on the command
// line. Global flags go before the command name; everything after it is
// passed through untouched.
func newOneShotCmds(root *rootOptions) []*cobra.Command {
	var cmds []*cobra.Command
	for _, name := range interpreter.New(nil, nil).Commands() {
		if name == "help" {
			continue
		}
		cmds = append(cmds, &cobra.Command{
			Use:                name + " [args...]",
			Short:              oneShotShort[name],
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnce(cmd, root, append([]string{name}, args...))
			},
		})
	}
	return cmds
}

// newHelpCmd prints the interpreter's help for interpreter commands and the
// CLI help for everything else.
func newHelpCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if err := cmd.Root().Help(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return runOnce(cmd, root, []string{"help"})
			}
			if slices.Contains(interpreter.New(nil, nil).Commands(), args[0]) {
				return runOnce(cmd, root, []string{args[0], "--help"})
			}
			target, _, err := cmd.Root().Find(args)
			if err != nil {
				return err
			}
			return target.Help()
		},
	}
}

func runOnce(cmd *cobra.Command, root *rootOptions, args []string) error {
	settings, logger, err := root.resolve(cmd, nil)
	if err != nil {
		return err
	}
	pool, err := simulator.LoadPool(settings.DeviceSet)
	if err != nil {
		return err
	}
	res := interpreter.New(pool, logger).InterpretArgs(cmd.Context(), args)
	if res.Message != "" || !res.OK() {
		if err := relay.WriteResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res); err != nil {
			return err
		}
	}
	if !res.OK() {
		return errFailed
	}
	return nil
}
