package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/observability"
)

type globalOptions struct {
	configPath string
	envPath    string
}

// env holds what every subcommand needs once flags are parsed.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "catalog-sync",
		Short: "Maintain the local product mirror",
		Long: `catalog-sync prepares the local product mirror schema and seeds it from
the distributor catalog, either directly or through the change-event topic.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "config file path")
	root.PersistentFlags().StringVar(&opts.envPath, "env", ".env", "optional dotenv file")

	root.AddCommand(newMigrateCmd(opts), newPullCmd(opts))
	return root
}

func (o *globalOptions) load() (*env, error) {
	if err := config.LoadEnv(o.envPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}
