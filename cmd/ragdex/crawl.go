package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/crawler"
)

func crawlCommand() *cli.Command {
	return &cli.Command{
		Name:      "crawl",
		Usage:     "Crawl a website, chunk every page and ingest the chunks",
		ArgsUsage: "<start-url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Target collection (default: retrieval.default_collection)",
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Link depth, 1 fetches only the start page (default: crawler.max_depth)",
			},
			&cli.StringSliceFlag{
				Name:  "domain",
				Usage: "Domain the crawl may enter; repeatable (default: the start URL's host)",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Also write the chunks to this JSON file, readable by ingest --file",
			},
			&cli.BoolFlag{
				Name:  "skip-ingest",
				Usage: "Only crawl and write --out",
			},
		},
		Action: crawl,
	}
}

func crawl(ctx context.Context, cmd *cli.Command) error {
	start := cmd.Args().First()
	if start == "" {
		return errors.New("start url is required")
	}
	if cmd.Bool("skip-ingest") && cmd.String("out") == "" {
		return errors.New("--skip-ingest needs --out")
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	crawlCfg := crawlerConfig(cfg.Crawler)
	if depth := int(cmd.Int("depth")); depth > 0 {
		crawlCfg.MaxDepth = depth
	}
	crawlCfg.AllowedDomains = cmd.StringSlice("domain")

	chunks, err := crawler.New(crawlCfg, logger).Crawl(ctx, start)
	if err != nil {
		return err
	}

	if out := cmd.String("out"); out != "" {
		if err := writeChunks(out, chunks); err != nil {
			return err
		}
		logger.Info("Chunks saved", zap.String("file", out), zap.Int("chunks", len(chunks)))
	}
	if cmd.Bool("skip-ingest") {
		return nil
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ingested, failed := ingestChunks(ctx, a.engine, chunks, cmd.String("collection"), cfg.Retrieval.IngestConcurrency, logger)

	logger.Info("Crawl ingestion finished",
		zap.String("start", start),
		zap.Int("chunks", len(chunks)),
		zap.Int64("ingested", ingested),
		zap.Int64("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d chunks failed", failed, len(chunks))
	}
	return nil
}

func crawlerConfig(c config.CrawlerConfig) crawler.Config {
	return crawler.Config{
		MaxDepth:     c.MaxDepth,
		Parallelism:  c.Parallelism,
		Delay:        time.Duration(c.DelayMS) * time.Millisecond,
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
		UserAgent:    c.UserAgent,
	}
}

func writeChunks(path string, chunks []crawledChunk) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create chunks file: %w", err)
	}
	if err := encodeChunks(f, chunks); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close chunks file: %w", err)
	}
	return nil
}

func encodeChunks(w io.Writer, chunks []crawledChunk) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(chunks); err != nil {
		return fmt.Errorf("encode chunks: %w", err)
	}
	return nil
}
