package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wudi/bookingpdf/contentstream"
	"github.com/wudi/bookingpdf/fonts"
)

type opsOptions struct {
	*rootOptions
	all bool
}

func newOpsCmd(root *rootOptions) *cobra.Command {
	opts := &opsOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "ops <template.pdf>",
		Short: "List the text operators of page 0",
		Long:  "Prints every text positioning and showing operator of page 0 with its byte offset in the decoded content, the source text and, for show operators, the traced position and decoded text. Use it to write pattern rules.",
		Args:  cobra.ExactArgs(1),
		RunE:  opts.run,
	}
	cmd.Flags().BoolVar(&opts.all, "all", false, "List every operator, not only text operators")
	return cmd
}

func isTextOp(name string) bool {
	switch name {
	case "BT", "ET", "Tf", "Tm", "Td", "TD", "T*", "TL", "Tc", "Tw", "Tz", "Tj", "TJ", "'", "\"":
		return true
	}
	return false
}

func (o *opsOptions) run(cmd *cobra.Command, args []string) error {
	logger, err := o.logger(cmd)
	if err != nil {
		return err
	}
	fp, err := loadFirstPage(cmd.Context(), args[0], logger)
	if err != nil {
		return err
	}
	ops, err := contentstream.Tokenize(fp.content)
	if err != nil {
		return err
	}
	runs, err := contentstream.NewTracer(fp.widths()).Trace(ops)
	if err != nil {
		return err
	}
	byOp := make(map[int]contentstream.TextRun, len(runs))
	for _, r := range runs {
		byOp[r.Op] = r
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tOPERATOR\tX\tY\tTEXT")
	for i, op := range ops {
		if !o.all && !isTextOp(op.Name) {
			continue
		}
		src := string(fp.content[op.Start:op.End])
		if op.Name == "BI" {
			src = fmt.Sprintf("BI ... EI (%d bytes)", len(op.Image))
		}
		x, y, text := "", "", ""
		if r, ok := byOp[i]; ok {
			x = strconv.FormatFloat(r.X, 'f', 2, 64)
			y = strconv.FormatFloat(r.Y, 'f', 2, 64)
			text = strconv.Quote(fonts.DecodeWinAnsi(r.Text))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", op.Start, src, x, y, text)
	}
	return tw.Flush()
}
