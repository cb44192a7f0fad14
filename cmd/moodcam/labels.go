package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-moodcam/pkg/emotion"
)

func newLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List the expression labels with their colors and glyphs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			palette := emotion.DefaultPalette()
			if cfg.Palette.File != "" {
				if palette, err = emotion.LoadPalette(cfg.Palette.File); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			for _, l := range emotion.All {
				d := palette.Lookup(l)
				fmt.Fprintf(out, "%-10s %s  %s\n", l, d.Color, d.Glyph)
			}
			return nil
		},
	}
}
