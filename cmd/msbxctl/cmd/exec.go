package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

var execCmd = &cobra.Command{
	Use:   "exec <namespace> <name> <command> [args...]",
	Short: "Run a shell command in a sandbox",
	Long:  `Run a command in a running sandbox's portal and print its output.`,
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace, name, command := args[0], args[1], args[2]
		cmdArgs := args[3:]

		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		result, err := newClient().CommandRun(ctx, namespace, name, command, cmdArgs)
		if err != nil {
			return fmt.Errorf("exec failed: %w", err)
		}

		if result.Stdout != "" {
			fmt.Print(result.Stdout)
		}
		if result.Stderr != "" {
			fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("command exited with code %d", result.ExitCode)
		}
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl <namespace> <name> <language> <code>",
	Short: "Evaluate code in a sandbox's REPL",
	Long: `Evaluate one snippet of code against a sandbox's persistent REPL
session for the given language (python, node, or rust). State (variables,
imports) persists across calls within the same sandbox.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace, name, language, code := args[0], args[1], args[2], args[3]

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		result, err := newClient().ReplRun(ctx, namespace, name, rpctypes.Language(language), code)
		if err != nil {
			return fmt.Errorf("repl.run failed: %w", err)
		}

		fmt.Print(result.Output)
		if result.HasError {
			return fmt.Errorf("evaluation error: %s", strings.TrimSpace(result.Error))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd, replCmd)
}
