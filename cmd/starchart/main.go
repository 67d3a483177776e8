// Package main implements the starchart CLI.
package main

import (
	"log/slog"
	"os"

	"github.com/dukerupert/starchart/internal/config"
	"github.com/dukerupert/starchart/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "starchart",
	Short:             "Family task chart with stars and rewards",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides STARCHART_DB_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides STARCHART_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "text or json (overrides STARCHART_LOG_FORMAT)")
	rootCmd.PersistentFlags().String("timezone", "", "IANA zone where days begin (overrides STARCHART_TIMEZONE)")
}

// loadConfig reads the environment and applies any flags the user set.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		c.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		c.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("timezone") {
		c.Timezone, _ = flags.GetString("timezone")
		if _, err := c.Location(); err != nil {
			return err
		}
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		c.Port, _ = flags.GetString("port")
	}

	cfg = c
	logger = logging.Setup(c.LogLevel, c.LogFormat)
	return nil
}
