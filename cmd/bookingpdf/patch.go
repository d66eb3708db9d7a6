package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wudi/bookingpdf/booking"
	"github.com/wudi/bookingpdf/patcher"
	"github.com/wudi/bookingpdf/template"
)

// Default file names inside the font directory.
const (
	boldFontFile    = "segoeuib.ttf"
	regularFontFile = "segoeui.ttf"
	italicFontFile  = "segoeuii.ttf"
)

type patchOptions struct {
	*rootOptions
	template string
	booking  string
	config   string
	fontDir  string
	bold     string
	regular  string
	italic   string
	out      string
}

func newPatchCmd(root *rootOptions) *cobra.Command {
	opts := &patchOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Fill a template with one booking",
		Long:  "Patches page 0 of a booking confirmation template with the booking read from a YAML or JSON file and writes the result. Rules that do not match are printed as warnings.",
		RunE:  opts.run,
	}
	f := cmd.Flags()
	f.StringVarP(&opts.template, "template", "t", "", "Path to the template PDF (required)")
	f.StringVarP(&opts.booking, "booking", "b", "", "Path to the booking YAML or JSON file (required)")
	f.StringVarP(&opts.config, "config", "c", "", "Path to a template config overriding the defaults")
	f.StringVar(&opts.fontDir, "fonts", "", "Directory with "+boldFontFile+", "+regularFontFile+" and "+italicFontFile+" (default $"+fontDirEnv+")")
	f.StringVar(&opts.bold, "bold", "", "Bold TrueType font file")
	f.StringVar(&opts.regular, "regular", "", "Regular TrueType font file")
	f.StringVar(&opts.italic, "italic", "", "Italic TrueType font file")
	f.StringVarP(&opts.out, "out", "o", "", "Path to the output PDF (required)")
	for _, name := range []string{"template", "booking", "out"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}
	return cmd
}

func (o *patchOptions) run(cmd *cobra.Command, _ []string) error {
	logger, err := o.logger(cmd)
	if err != nil {
		return err
	}
	files, err := o.fonts()
	if err != nil {
		return err
	}
	engine, err := patcher.New(patcher.Config{Fonts: files}, patcher.WithLogger(logger))
	if err != nil {
		return err
	}

	pdf, err := os.ReadFile(o.template)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	in, err := booking.LoadInput(o.booking)
	if err != nil {
		return err
	}
	data, err := booking.FromDates(in)
	if err != nil {
		return err
	}
	var cfg *template.Config
	if o.config != "" {
		if cfg, err = template.Load(o.config); err != nil {
			return err
		}
	}

	res, err := engine.Patch(cmd.Context(), pdf, data, cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.out, res.PDF, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	w := cmd.OutOrStdout()
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintf(w, "wrote %s (%d bytes, %d fonts replaced, %d warnings)\n", o.out, len(res.PDF), len(res.Fonts), len(res.Warnings))
	return nil
}

// fonts reads the three font files. Explicit paths win over the directory.
func (o *patchOptions) fonts() (patcher.FontFiles, error) {
	dir := o.fontDir
	if dir == "" {
		dir = os.Getenv(fontDirEnv)
	}
	var files patcher.FontFiles
	for _, f := range []struct {
		flag, path, file string
		dst              *[]byte
	}{
		{"bold", o.bold, boldFontFile, &files.Bold},
		{"regular", o.regular, regularFontFile, &files.Regular},
		{"italic", o.italic, italicFontFile, &files.Italic},
	} {
		path := f.path
		if path == "" {
			if dir == "" {
				return files, fmt.Errorf("no %s font: set --%s, --fonts or $%s", f.flag, f.flag, fontDirEnv)
			}
			path = filepath.Join(dir, f.file)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return files, fmt.Errorf("failed to read font: %w", err)
		}
		*f.dst = data
	}
	return files, nil
}
