// Command bookingpdf fills booking confirmation templates and helps author
// their pattern rules.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wudi/bookingpdf/observability"
)

// fontDirEnv names the directory holding the replacement fonts.
const fontDirEnv = "BOOKINGPDF_FONT_DIR"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "bookingpdf",
		Short:         "Booking confirmation PDF patcher",
		Long:          "bookingpdf rewrites the per-booking text of a confirmation template and re-embeds font subsets that cover the new text.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newPatchCmd(opts),
		newOpsCmd(opts),
		newFontsCmd(opts),
		newDefaultsCmd(),
	)
	return cmd
}

// logger writes to the command's stderr at the requested level.
func (o *rootOptions) logger(cmd *cobra.Command) (observability.Logger, error) {
	level, err := observability.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return observability.NewStdLogger(cmd.ErrOrStderr(), level), nil
}
