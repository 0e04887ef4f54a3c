package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "Face recognition attendance engine",
	Long: `Face Attendance watches a camera, recognizes known employees, confirms
they are physically present by counting blinks and records their arrival and
departure for the day.

The engine is controlled over an HTTP API that also serves a live preview
(MJPEG, snapshots and a WebSocket feed) and today's attendance.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// setupLogging configures the standard logrus logger from the config and the --log-level flag.
func setupLogging(cmd *cobra.Command, cfg *config.Config) {
	level := cfg.Logging.Level
	if flag, err := cmd.Flags().GetString("log-level"); err == nil && flag != "" {
		level = flag
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("unknown log level, using info")
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)

	if cfg.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
