package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskmanager/internal/config"
	"taskmanager/internal/logger"
)

var Version = "dev"

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "taskmanager",
		Short:         "Offline-first task manager: local agent and sync server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "path to config.yaml")

	load := func() (*config.Config, *zap.SugaredLogger, error) {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		log, err := logger.New(cfg.Log)
		if err != nil {
			return nil, nil, err
		}
		return cfg, log, nil
	}

	rootCmd.AddCommand(agentCmd(load))
	rootCmd.AddCommand(serverCmd(load))
	rootCmd.AddCommand(syncCmd(load))
	rootCmd.AddCommand(queueCmd(load))
	rootCmd.AddCommand(exportCmd(load))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
