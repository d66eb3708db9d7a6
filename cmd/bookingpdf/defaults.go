package main

import (
	"github.com/spf13/cobra"

	"github.com/wudi/bookingpdf/template"
)

func newDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in template config as YAML",
		Long:  "Prints the configuration of the reference template. Save it, edit it and pass it to patch with --config.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := template.Default().Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
