package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dashfolio/internal/domain/config"
)

var (
	cfgFile string
	debug   bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dashfolio",
	Short: "dashboard-style portfolio and blog engine",
	Long: `dashfolio renders a markdown post collection into a dashboard-style
portfolio site: post pages with TOC and syntax highlighting, fuzzy search,
tag browsing, and small JSON widgets (page views, GitHub activity).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if debug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}

		var err error
		cfg, err = config.LoadOrDefault(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "site.yaml", "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
