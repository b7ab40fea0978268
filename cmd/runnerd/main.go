package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and every subcommand. Output of the
// client commands goes to out.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.SetOut(out)
	cmd := command{flags: globalFlags, out: out}

	root.AddCommand(
		createServeCommand(globalFlags),
		createSpawnCommand(cmd),
		createRunCommand(cmd),
		createTerminateCommand(cmd),
		createKillCommand(cmd),
		createTerminateAllCommand(cmd),
		createListCommand(cmd),
		createStatsCommand(cmd),
		createOutputCommand(cmd),
		createHealthCommand(cmd),
		createEventsCommand(cmd),
	)
	return root
}

// createRootCommand creates the root command with the persistent flags
// shared by every client command.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "runnerd",
		Short: "Supervisor daemon for AI agent CLIs",
		Long: `runnerd keeps agent command-line programs and one-shot runs alive and
observable independently of the control plane that requested them.

Examples:
  runnerd serve config.toml
  runnerd spawn --id=task-42 -- claude --output-format stream-json -p "fix the bug"
  runnerd list
  runnerd terminate task-42
  runnerd events`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default "+defaultAPIURL+")")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	pf.StringVar(&flags.CACert, "ca-cert", "", "CA certificate for an HTTPS daemon")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
	return root
}
