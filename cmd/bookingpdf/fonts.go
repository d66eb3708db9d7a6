package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wudi/bookingpdf/ir/raw"
)

func newFontsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fonts <template.pdf>",
		Short: "List the font resources of page 0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger(cmd)
			if err != nil {
				return err
			}
			fp, err := loadFirstPage(cmd.Context(), args[0], logger)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tOBJECT\tSUBTYPE\tBASEFONT\tCHARS\tEMBEDDED")
			for _, f := range fp.fonts {
				subtype, _ := f.Dict.Name("Subtype")
				base, _ := f.Dict.Name("BaseFont")
				chars := "-"
				fc, okF := fp.doc.ResolveInt(f.Dict.KV["FirstChar"])
				lc, okL := fp.doc.ResolveInt(f.Dict.KV["LastChar"])
				if okF && okL {
					chars = fmt.Sprintf("%d-%d", fc, lc)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", f.Name, f.Ref, subtype, base, chars, embedded(fp.doc, f.Dict))
			}
			return tw.Flush()
		},
	}
}

// embedded names the descriptor key holding the font program, if any.
func embedded(doc *raw.Document, font *raw.DictObj) string {
	fd, ok := doc.ResolveDict(font.KV["FontDescriptor"])
	if !ok {
		return "no descriptor"
	}
	for _, key := range []string{"FontFile2", "FontFile", "FontFile3"} {
		if _, ok := fd.Get(key); ok {
			return key
		}
	}
	return "no"
}
