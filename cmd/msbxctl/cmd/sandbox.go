package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

var sandboxCmd = &cobra.Command{
	Use:     "sandbox",
	Aliases: []string{"sb"},
	Short:   "Start, stop, and inspect sandboxes",
}

var startCmd = &cobra.Command{
	Use:   "start <namespace> <name>",
	Short: "Start (or restart) a sandbox",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, _ := cmd.Flags().GetString("image")
		exec, _ := cmd.Flags().GetString("exec")
		memory, _ := cmd.Flags().GetInt("memory")
		cpus, _ := cmd.Flags().GetInt("cpus")

		cfg := rpctypes.SandboxConfig{
			Image:     image,
			Exec:      exec,
			MemoryMiB: memory,
			CPUs:      cpus,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Second)
		defer cancel()

		result, err := newClient().Start(ctx, args[0], args[1], cfg)
		if err != nil {
			return fmt.Errorf("start failed: %w", err)
		}

		fmt.Printf("✓ %s\n", result.Message)
		if result.Warning != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", result.Warning)
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <namespace> <name>",
	Short: "Stop a sandbox",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		message, err := newClient().Stop(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("stop failed: %w", err)
		}
		fmt.Printf("✓ %s\n", message)
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics [namespace]",
	Short: "Show running sandboxes and their resource usage",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		namespace := "*"
		if len(args) == 1 {
			namespace = args[0]
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		records, err := newClient().Metrics(ctx, namespace)
		if err != nil {
			return fmt.Errorf("metrics failed: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "NAMESPACE\tNAME\tRUNNING\tCPU%\tMEM(B)\tUPTIME(s)\tRESTARTS")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%v\t%.1f\t%d\t%d\t%d\n",
				r.Namespace, r.Name, r.Running, r.CPUUsage, r.MemoryUsage, r.UptimeSeconds, r.RestartCount)
		}
		return w.Flush()
	},
}

func init() {
	startCmd.Flags().String("image", "", "rootfs image")
	startCmd.Flags().String("exec", "", "entrypoint command")
	startCmd.Flags().Int("memory", 0, "memory in MiB")
	startCmd.Flags().Int("cpus", 0, "CPU count")

	sandboxCmd.AddCommand(startCmd, stopCmd, metricsCmd)
	rootCmd.AddCommand(sandboxCmd)
}
