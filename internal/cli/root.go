// Package cli implements the mediaporter command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ytget/mediaporter/internal/config"
)

var (
	// cfgFile holds the path to the configuration file
	cfgFile string

	// logLevel overrides the configured log level
	logLevel string

	// settings is loaded before any subcommand runs
	settings config.Settings

	// log is shared by all commands
	log = logrus.New()

	rootCmd = &cobra.Command{
		Use:           "mediaporter",
		Short:         "Batch downloader for Bilibili videos, episodes and movies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command
func Execute(version string) error {
	rootCmd.AddCommand(
		newDownloadCommand(),
		newLoginCommand(),
		newStatusCommand(),
		newHistoryCommand(),
		newVersionCommand(version),
	)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error(err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./mediaporter.yaml or <user config dir>/mediaporter/mediaporter.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// initConfig loads settings and configures the logger
func initConfig() error {
	s, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	settings = s
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	return configureLogger(log, settings.LogLevel)
}

func configureLogger(l *logrus.Logger, level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(lvl)
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	return nil
}
