package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/crawler"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieval"
)

// crawledChunk is one element of the crawler's JSON output.
type crawledChunk = crawler.Chunk

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Ingest crawled chunks from a JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "JSON array of {URL, Title, Content}",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Target collection (default: retrieval.default_collection)",
			},
		},
		Action: ingest,
	}
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	chunks, err := readChunks(cmd.String("file"))
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ingested, failed := ingestChunks(ctx, a.engine, chunks, cmd.String("collection"), cfg.Retrieval.IngestConcurrency, logger)

	logger.Info("Ingestion finished",
		zap.Int("chunks", len(chunks)),
		zap.Int64("ingested", ingested),
		zap.Int64("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d chunks failed", failed, len(chunks))
	}
	return nil
}

func readChunks(path string) ([]crawledChunk, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open chunks: %w", err)
	}
	defer f.Close()

	return decodeChunks(f)
}

func decodeChunks(r io.Reader) ([]crawledChunk, error) {
	var chunks []crawledChunk
	if err := json.NewDecoder(r).Decode(&chunks); err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	return chunks, nil
}

type ingester interface {
	Ingest(ctx context.Context, req retrieval.IngestRequest) (string, error)
}

// ingestChunks ingests every chunk independently; one failure never stops the rest.
func ingestChunks(
	ctx context.Context,
	engine ingester,
	chunks []crawledChunk,
	collection string,
	concurrency int,
	logger *zap.Logger,
) (ingested, failed int64) {
	var ok, bad atomic.Int64

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))

	for i, c := range chunks {
		g.Go(func() error {
			_, err := engine.Ingest(ctx, retrieval.IngestRequest{
				Content:    c.Content,
				Source:     c.URL,
				Collection: collection,
				Title:      c.Title,
			})
			if err != nil {
				bad.Add(1)
				logger.Warn("Chunk ingestion failed",
					zap.Int("index", i),
					zap.String("url", c.URL),
					zap.Error(err),
				)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return ok.Load(), bad.Load()
}
