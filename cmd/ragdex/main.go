package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:    "ragdex",
		Usage:   "Semantic retrieval backend for RAG",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Configuration environment (local, dev, prod)",
				Value:   "local",
				Sources: cli.EnvVars("ENV"),
			},
			&cli.StringFlag{
				Name:    "config-dir",
				Usage:   "Directory holding {env}.yaml",
				Sources: cli.EnvVars("RAGDEX_CONFIG_DIR"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			ingestCommand(),
			crawlCommand(),
			queryCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err.Error())
	}
}

// setup loads the configuration and the logger selected by the global flags.
func setup(cmd *cli.Command) (config.Config, *zap.Logger, error) {
	env := cmd.String("env")

	cfg, err := config.LoadFrom(cmd.String("config-dir"), env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}
