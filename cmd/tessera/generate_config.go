package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGenerateConfigCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config",
		Short: "Print the effective configuration as TOML.",
		Long: `generate-config prints the configuration after flags, environment
and config file were applied, ready to be saved as a config file.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, marshalErr := st.config.TOML()
			if marshalErr != nil {
				return marshalErr
			}
			fmt.Fprintf(st.stdout, "%s\n", out)
			return nil
		},
	}
}
