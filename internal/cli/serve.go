package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ARIHARAN-KC/nexa/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nexa HTTP API",
	Long: `Start the HTTP API: POST /api/process streams pipeline events as NDJSON,
and the history, download, fix, project file, analytics and /metrics routes
share the same database and object store.

The server shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		srv := web.NewServer(web.Deps{
			Runner:      a.orchestrator(),
			History:     a.db,
			Fixer:       a.bugFixer(),
			Objects:     a.objects,
			Analytics:   a.db,
			Gatherer:    prometheus.DefaultGatherer,
			DefaultUser: cfg.Server.DefaultUser,
			Logger:      logger,
		}, port, cfg.Server.ReadHeaderTimeout)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port to listen on (overrides server.port)")
}
