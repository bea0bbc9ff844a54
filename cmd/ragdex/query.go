package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/endpoint"
	natsT "github.com/kailas-cloud/ragdex/internal/transport/nats"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Run a semantic query and print the results as JSON",
		ArgsUsage: "<text>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Collection to search (default: retrieval.default_collection)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results (default: retrieval.default_limit)",
			},
			&cli.BoolFlag{
				Name:  "nats",
				Usage: "Query a running service over NATS instead of the local store",
			},
		},
		Action: query,
	}
}

func query(ctx context.Context, cmd *cli.Command) error {
	text := strings.Join(cmd.Args().Slice(), " ")
	if text == "" {
		return errors.New("query text is required")
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var endpoints endpoint.EndpointSet
	if cmd.Bool("nats") {
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is not configured")
		}
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.NATS.Name+" query"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		endpoints = natsT.MakeEndpoints(nc, cfg.NATS.Name)
	} else {
		a, err := buildApp(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		endpoints = endpoint.MakeEndpoints(a.engine, cfg.Retrieval.DefaultLimit)
	}

	req := endpoint.QueryRequest{
		Query:          text,
		CollectionName: cmd.String("collection"),
	}
	if cmd.IsSet("limit") {
		limit := int(cmd.Int("limit"))
		req.Limit = &limit
	}

	resp, err := endpoints.WithLogging(logger.Named("query")).Query(ctx, req)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		logger.Error("Failed to print results", zap.Error(err))
		return fmt.Errorf("print results: %w", err)
	}
	return nil
}
