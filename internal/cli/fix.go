package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Diagnose an error against a source file and print the fixed code",
	RunE: func(cmd *cobra.Command, args []string) error {
		codeFile, _ := cmd.Flags().GetString("code-file")
		errText, _ := cmd.Flags().GetString("error")
		errFile, _ := cmd.Flags().GetString("error-file")

		if codeFile == "" {
			return errors.New("--code-file is required")
		}
		code, err := os.ReadFile(codeFile)
		if err != nil {
			return fmt.Errorf("read code: %w", err)
		}
		if errFile != "" {
			data, err := os.ReadFile(errFile)
			if err != nil {
				return fmt.Errorf("read error: %w", err)
			}
			errText = string(data)
		}
		if errText == "" {
			return errors.New("--error or --error-file is required")
		}

		a, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		fix, err := a.bugFixer().Fix(cmd.Context(), string(code), errText)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd, fix)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Cause:      %s\n", fix.Analysis.Cause)
		fmt.Fprintf(w, "Components: %v\n", fix.Analysis.Components)
		fmt.Fprintf(w, "Impacts:    %s\n\n", fix.Analysis.Impacts)
		fmt.Fprintf(w, "Solution:\n%s\n\n", fix.Solution)
		fmt.Fprintf(w, "Fixed code:\n%s\n", fix.FixedCode)
		return nil
	},
}

func init() {
	fixCmd.Flags().String("code-file", "", "path to the source file")
	fixCmd.Flags().String("error", "", "error message or stack trace")
	fixCmd.Flags().String("error-file", "", "read the error text from a file")
	fixCmd.Flags().String("format", "text", "Output format: text or json")
}
