package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ARIHARAN-KC/nexa/internal/prompt"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage prompt template overrides",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the prompt templates",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range prompt.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

var promptsInstallCmd = &cobra.Command{
	Use:   "install [dir]",
	Short: "Copy the built-in templates into a directory for editing",
	Long: `Copy the built-in templates into dir (default prompts.dir). Files that
already exist are left untouched. Point prompts.dir at the directory to use
the edited templates.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Prompts.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return errors.New("no directory given and prompts.dir is not set")
		}

		written, err := prompt.Install(dir)
		if err != nil {
			return err
		}
		for _, name := range written {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", name)
		}
		if len(written) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All templates already present.")
		}
		return nil
	},
}

func init() {
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsInstallCmd)
}
