// Package cmd provides the command-line interface of fattreesim.
package cmd

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/fattree/sim"
)

// statsEnvVar names the database the statistics are written to when no
// output is given on the command line.
const statsEnvVar = "FATTREE_LINK_STATS"

var (
	logLevel  string
	uniqueIDs bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fattreesim",
	Short: "fattreesim simulates fat-tree interconnects.",
	Long: `fattreesim simulates 2- and 3-level fat-tree interconnects ` +
		`packet by packet, with credit-based flow control and adaptive ` +
		`up-routing. Events can be rolled back and replayed to exercise ` +
		`the reverse handlers of an optimistic kernel.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)

		if uniqueIDs {
			sim.UseParallelIDGenerator()
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn or error.")
	rootCmd.PersistentFlags().BoolVar(&uniqueIDs, "unique-ids", false,
		"Name runs and events with globally unique IDs, for databases "+
			"shared by several processes.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
