package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dot5enko/tessera/connector"
	"github.com/dot5enko/tessera/coordinator"
	"github.com/dot5enko/tessera/result"
)

type sqlQuerier interface {
	QuerySQL(ctx context.Context, text string) (*result.Table, error)
}

func isQuery(stmt string) bool {
	head := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH") || strings.HasPrefix(head, "PRAGMA")
}

func newExecCommand(st *state) *cobra.Command {

	var (
		describe string
		dump     bool
	)

	cmd := &cobra.Command{
		Use:   "exec [statement]",
		Short: "Run one SQL statement against the configured backend.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			opts, optsErr := st.config.ConnectorOptions(st.logger)
			if optsErr != nil {
				return optsErr
			}
			conn, openErr := connector.Open(opts)
			if openErr != nil {
				return openErr
			}

			coord := coordinator.New(conn, st.config.CoordinatorConfig(st.logger, nil))
			defer coord.Close()

			if describe != "" {
				s, describeErr := coord.Describe(ctx, describe)
				if describeErr != nil {
					return describeErr
				}
				for _, it := range s.Columns {
					fmt.Fprintf(st.stdout, "%s\t%s\n", it.Name, it.Type)
				}
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("statement or --describe required")
			}
			stmt := args[0]

			if !isQuery(stmt) {
				if execErr := coord.Exec(ctx, stmt); execErr != nil {
					return execErr
				}
				color.New(color.FgGreen).Fprintln(st.stdout, "ok")
				return nil
			}

			querier, ok := conn.(sqlQuerier)
			if !ok {
				return fmt.Errorf("%s transport cannot run SQL text", opts.Transport)
			}
			data, queryErr := querier.QuerySQL(ctx, stmt)
			if queryErr != nil {
				return queryErr
			}

			if dump {
				spew.Fdump(st.stdout, data.Rows())
				return nil
			}
			return printTable(st.stdout, data)
		},
	}

	cmd.Flags().StringVar(&describe, "describe", "", "Print the columns of a table instead.")
	cmd.Flags().BoolVar(&dump, "dump", false, "Dump rows with their Go types.")

	return cmd
}

func printTable(out io.Writer, data *result.Table) error {

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	cols := data.Columns()
	names := make([]string, len(cols))
	for idx, it := range cols {
		names[idx] = it.Name()
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	for row := 0; row < data.NumRows(); row++ {
		cells := make([]string, len(cols))
		for idx, it := range cols {
			if it.IsNull(row) {
				cells[idx] = "NULL"
				continue
			}
			cells[idx] = fmt.Sprint(it.Value(row))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	if flushErr := w.Flush(); flushErr != nil {
		return flushErr
	}

	color.New(color.FgYellow).Fprintf(out, "(%d rows)\n", data.NumRows())
	return nil
}
