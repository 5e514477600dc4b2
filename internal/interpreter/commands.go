package interpreter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/simrelay/internal/simulator"
)

type queryFlags struct {
	udids  []string
	states []string
}

func (q *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&q.udids, "udid", nil, "Match simulators by udid (repeatable)")
	cmd.Flags().StringArrayVar(&q.states, "state", nil, "Match simulators by state (repeatable)")
}

// query merges positional udids with the flags.
func (q *queryFlags) query(args []string) (simulator.Query, error) {
	out := simulator.Query{UDIDs: append(append([]string(nil), q.udids...), args...)}
	for _, s := range q.states {
		st, err := simulator.ParseState(s)
		if err != nil {
			return simulator.Query{}, err
		}
		out.States = append(out.States, st)
	}
	return out, nil
}

func (i *Interpreter) listCmd() *cobra.Command {
	var (
		q      queryFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "list [udid...]",
		Short: "List simulators",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query(args)
			if err != nil {
				return err
			}
			f, err := simulator.ParseFormat(format)
			if err != nil {
				return err
			}
			sims := i.pool.Filter(query)
			if len(sims) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), f.RenderAll(sims))
			}
			return nil
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "", "Comma separated fields: udid,name,device-name,os-version,state")
	return cmd
}

func (i *Interpreter) stateCmd(name, short string, apply func(udid string) (simulator.Simulator, error)) *cobra.Command {
	var (
		q      queryFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   name + " [udid...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query(args)
			if err != nil {
				return err
			}
			if query.Empty() {
				return fmt.Errorf("%s needs --udid or --state", name)
			}
			f, err := simulator.ParseFormat(format)
			if err != nil {
				return err
			}
			matches := i.pool.Filter(query)
			if len(matches) == 0 {
				return fmt.Errorf("%s: %w for query", name, simulator.ErrNotFound)
			}
			var (
				changed []simulator.Simulator
				errs    []error
			)
			for _, s := range matches {
				next, err := apply(s.UDID)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				i.logger.Info("simulator state changed", "udid", next.UDID, "state", string(next.State))
				changed = append(changed, next)
			}
			if len(errs) > 0 {
				if len(changed) > 0 {
					return fmt.Errorf("%s succeeded for:\n%s\n%w", name, f.RenderAll(changed), errors.Join(errs...))
				}
				return errors.Join(errs...)
			}
			fmt.Fprintln(cmd.OutOrStdout(), f.RenderAll(changed))
			return nil
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "", "Comma separated fields to print for each simulator")
	return cmd
}

func (i *Interpreter) diagnoseCmd() *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "diagnose [udid...]",
		Short: "Show diagnostic files for simulators",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query(args)
			if err != nil {
				return err
			}
			var lines []string
			for _, s := range i.pool.Filter(query) {
				if path, ok := i.pool.SystemLog(s); ok {
					lines = append(lines, "system.log "+path)
				}
			}
			if len(lines) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			}
			return nil
		},
	}
	q.bind(cmd)
	return cmd
}
