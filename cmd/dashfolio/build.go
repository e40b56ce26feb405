package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"dashfolio/internal/build"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "render the whole site into the public directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := &build.Builder{Cfg: cfg}
		res, err := b.Run(cmd.Context())
		if err != nil {
			return err
		}
		log.Info().Int("posts", res.Posts).Int("pages", res.Pages).Str("dir", cfg.Content.PublicDir).Msg("site built")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
