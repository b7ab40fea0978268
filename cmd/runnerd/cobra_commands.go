package main

import (
	"github.com/spf13/cobra"
)

func createSpawnCommand(c command) *cobra.Command {
	f := &SpawnFlags{}
	cmd := &cobra.Command{
		Use:   "spawn --id=JOB [flags] -- COMMAND [ARGS...]",
		Short: "Spawn a long-lived agent job",
		Long: `Spawn an allow-listed agent command under the daemon.

Examples:
  runnerd spawn --id=task-1 -- claude -p "summarize README.md"
  runnerd spawn --id=task-2 --input=- --wait -- codex exec < prompt.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Spawn(*f, args)
		},
	}
	cmd.Flags().StringVar(&f.JobID, "id", "", "job ID (required)")
	cmd.Flags().StringVar(&f.TaskID, "task", "", "task ID to associate with the job")
	cmd.Flags().StringVar(&f.Input, "input", "", "text written to stdin (- reads from this process's stdin)")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "absolute working directory")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "extra environment KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&f.Dialect, "dialect", "", "output dialect: raw or claude-stream-json (default: detect)")
	cmd.Flags().BoolVar(&f.Wait, "wait", false, "wait for the job to finish and print its output")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createRunCommand(c command) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] -- COMMAND [ARGS...]",
		Short: "Start a one-shot CLI run",
		Long: `Start a one-shot run. A run ID is generated when --id is omitted.

Examples:
  runnerd run --timeout=2m --wait -- gemini -p "list TODOs"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(*f, args)
		},
	}
	cmd.Flags().StringVar(&f.RunID, "id", "", "run ID (optional)")
	cmd.Flags().StringVar(&f.Input, "input", "", "text written to stdin (- reads from this process's stdin)")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "absolute working directory")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "extra environment KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&f.Dialect, "dialect", "", "output dialect: raw or claude-stream-json (default: detect)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "terminate the run after this long (0 = no limit)")
	cmd.Flags().BoolVar(&f.Wait, "wait", false, "wait for the run to finish and print its output")
	return cmd
}

func createTerminateCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate JOB",
		Short: "Stop a job gracefully (SIGTERM, then SIGKILL after the grace period)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Terminate(args[0])
		},
	}
}

func createKillCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "kill JOB",
		Short: "Kill a job immediately with SIGKILL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Kill(args[0])
		},
	}
}

func createTerminateAllCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate-all",
		Short: "Gracefully stop every job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.TerminateAll()
		},
	}
}

func createListCommand(c command) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active jobs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func createStatsCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "stats JOB",
		Short: "Show resource usage of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stats(args[0])
		},
	}
}

func createOutputCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "output JOB",
		Short: "Print the output of a running or finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Output(args[0])
		},
	}
}

func createHealthCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Health()
		},
	}
}

func createEventsCommand(c command) *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream daemon events as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Events(cmd.Context(), jobID)
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "only show events for this job")
	return cmd
}
