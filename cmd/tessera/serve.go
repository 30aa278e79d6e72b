package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dot5enko/tessera/connector/sqlite"
	"github.com/dot5enko/tessera/dataset"
	"github.com/dot5enko/tessera/server"
)

func newServeCommand(st *state) *cobra.Command {

	var (
		cells int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a SQLite database to remote views.",
		Long: `serve exposes the configured SQLite database over HTTP. With --cells
a synthetic single cell table is generated into the configured table first.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, openErr := sqlite.Open(st.config.Database, st.logger)
			if openErr != nil {
				return openErr
			}
			defer conn.Close()

			if cells > 0 {
				data, genErr := dataset.Generate(dataset.Options{Cells: cells, Clusters: 8, Seed: seed})
				if genErr != nil {
					return genErr
				}
				if loadErr := conn.Load(ctx, st.config.Table, data); loadErr != nil {
					return loadErr
				}
				color.New(color.FgYellow).Fprintf(st.stdout, " generated %d cells into `%s`\n", cells, st.config.Table)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())

			srv := server.New(conn, server.Options{
				Logger:     st.logger,
				Registerer: reg,
				Gatherer:   reg,
			})

			color.New(color.FgGreen).Fprintf(st.stdout, " serving on %s\n", st.config.Listen)

			return srv.ListenAndServe(ctx, st.config.Listen)
		},
	}

	cmd.Flags().IntVar(&cells, "cells", 0, "Generate this many synthetic cells before serving.")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Synthetic dataset seed.")

	return cmd
}
