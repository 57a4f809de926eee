package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/config"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "docqa",
		Short:         "document ingestion and question answering over a vector store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	load := func() (*config.Config, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
		return cfg, nil
	}

	rootCmd.AddCommand(
		newIngestCmd(load),
		newSearchCmd(load),
		newAskCmd(load),
		newServeCmd(load),
		newTokenCmd(load),
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}
