package cli

import (
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ARIHARAN-KC/nexa/internal/orchestrator"
	"github.com/ARIHARAN-KC/nexa/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run one prompt through the pipeline and stream NDJSON events to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			user = cfg.Server.DefaultUser
		}

		o := a.orchestrator()
		if progress, _ := cmd.Flags().GetBool("progress"); progress {
			o.SetProgress(cmd.ErrOrStderr())
		}

		var last pipeline.Event
		events := o.Run(ctx, orchestrator.Request{
			Prompt: strings.Join(args, " "),
			UserID: user,
		})
		_, err = pipeline.NewEncoder(cmd.OutOrStdout()).Stream(func(yield func(pipeline.Event) bool) {
			for ev := range events {
				last = ev
				if !yield(ev) {
					return
				}
			}
		})
		if err != nil {
			return err
		}
		if last.Type == pipeline.TypeError {
			return errors.New(last.Error)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("progress", false, "print stage progress to stderr")
	runCmd.Flags().String("user", "", "user id to record the conversation under (default server.default_user)")
}
