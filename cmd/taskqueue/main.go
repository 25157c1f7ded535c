package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mycelian/taskqueue/internal/config"
	"github.com/mycelian/taskqueue/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "taskqueue",
	Short: "Durable, shard-aware task queue worker, renewer and cleanup operator",
}

func main() {
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newMuleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the process configuration and a logger tagged for
// component, the pair every subcommand needs before it can wire a
// shard directory and router.
func loadConfig(component string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}
	base := logger.New(cfg.ProcessName)
	return cfg, logger.Component(base, component), nil
}
