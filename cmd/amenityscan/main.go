package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "AmenityScan"
	version = "v1.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     "amenityscan",
		Short:   "Household amenity access scoring for Indian survey data",
		Version: version,
		Long: `AmenityScan merges Census, NSS, and open-data-portal tables of household
amenity access into one unified dataset, computes a weighted composite
access score per (region, year, area type), and derives priority rankings,
deprivation estimates, and rural/urban gap reports.`,
	}

	rootCmd.PersistentFlags().String("config", "config", "Configuration directory")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newSourcesCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func applyLogLevel(cmd *cobra.Command) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
