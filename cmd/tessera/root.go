package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dot5enko/tessera/config"
)

// state is shared by the commands of one invocation.
type state struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	config *config.Config
	logger *slog.Logger
}

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {

	st := &state{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		config: config.NewConfig(),
	}

	rc := &cobra.Command{
		Use:   "tessera",
		Short: "Cross-filtered single cell views over SQL backends.",
		Long: `tessera coordinates linked plots over a shared query backend.

It serves SQLite over HTTP for remote views, runs the single cell
overview headless and executes one-off statements.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if applyErr := config.Apply(viper.New(), cmd.Flags()); applyErr != nil {
				return applyErr
			}
			if validErr := st.config.Validate(); validErr != nil {
				return validErr
			}
			st.logger = st.config.Logger(stderr)
			slog.SetDefault(st.logger)
			return nil
		},
	}

	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	st.config.Flags(rc.PersistentFlags())

	rc.AddCommand(newServeCommand(st))
	rc.AddCommand(newExploreCommand(st))
	rc.AddCommand(newExecCommand(st))
	rc.AddCommand(newGenerateConfigCommand(st))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	rc.SetIn(stdin)

	return rc
}
