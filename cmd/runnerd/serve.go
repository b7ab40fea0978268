package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	runner "github.com/fiercefairy/PortOS-sub006"
	"github.com/fiercefairy/PortOS-sub006/internal/logger"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the runnerd daemon",
		Long: `Start the supervisor daemon. Configuration comes from config.toml (optional;
built-in defaults otherwise) and RUNNERD_* environment overrides.

Examples:
  runnerd serve                     # defaults, listen on 127.0.0.1:5560
  runnerd serve config.toml         # start with specific config file
  runnerd serve --daemonize --pidfile=/run/runnerd.pid config.toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(cmd.Context(), serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon stdout/stderr to file")
	return cmd
}

func runServeCommand(ctx context.Context, flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	cfg, err := runner.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		if !isDaemonSupported() {
			return fmt.Errorf("--daemonize is not supported on this platform")
		}
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	log, closer := logger.New(cfg.Log, os.Stderr)
	defer func() { _ = closer.Close() }()
	if src := cfg.Source(); src != "" {
		log.Info("config loaded", "path", src)
	}

	sup, err := runner.New(cfg, log)
	if err != nil {
		return err
	}
	if cfg.Source() != "" {
		if err := sup.WatchConfig(); err != nil {
			log.Warn("config watch disabled", "error", err)
		}
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sup.Serve(ctx); err != nil {
		log.Error("server stopped", "error", err)
		return err
	}
	log.Info("shutdown complete")
	return nil
}
