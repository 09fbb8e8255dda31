package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/config"
	"github.com/ARIHARAN-KC/nexa/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configPath string
	logLevel   string

	// Set by PersistentPreRunE for every command.
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "nexa",
	Short: "Turn a prompt into a downloadable software project",
	Long: `nexa classifies a request as conversation or a coding project. Projects go
through planning, keyword extraction, research, web retrieval and code
generation, and every step is streamed as an NDJSON event.

Configuration is read from --config, ./nexa.yaml or ~/.nexa/config.yaml.
Conversations and stage analytics live in SQLite (or Postgres via a
postgres:// DSN); generated files go to a local directory or a GCS bucket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg = c

		l, err := logging.New(c.Log.Level, c.Log.Format)
		if err != nil {
			// config validate reports the bad setting itself.
			cmd.PrintErrf("warning: %v; logging disabled\n", err)
			l = zap.NewNop()
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to nexa config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(promptsCmd)
}
