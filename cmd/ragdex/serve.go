package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/endpoint"
	chiT "github.com/kailas-cloud/ragdex/internal/transport/chi"
	natsT "github.com/kailas-cloud/ragdex/internal/transport/nats"
	openaiT "github.com/kailas-cloud/ragdex/internal/transport/openai"
	chatuc "github.com/kailas-cloud/ragdex/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	"github.com/kailas-cloud/ragdex/internal/version"
)

type chatStreamer interface {
	Stream(ctx context.Context, query string) iter.Seq2[string, error]
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the HTTP API and, when configured, the NATS micro service",
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", cmd.String("env")),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Error closing engine", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect eagerly; a failure is retried lazily by the next request.
	startCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second)
	if err := a.engine.Start(startCtx); err != nil {
		logger.Warn("Vector store unavailable at startup", zap.Error(err))
	}
	cancel()

	// Pass nil interface (not typed nil pointer!) when chat is disabled.
	var streamer chatStreamer
	if cfg.Chat.Enabled {
		streamer = chatuc.New(openaiT.NewChat(&openaiT.ChatConfig{
			APIKey:      cfg.Chat.APIKey,
			BaseURL:     cfg.Chat.BaseURL,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
		}), cfg.Chat.SystemPrompt, logger)
	}

	healthSvc := healthuc.New(a.engine, a.embedder, logger)

	if cfg.NATS.URL != "" {
		nc, err := startNATS(cfg.NATS, a, cfg.Retrieval.DefaultLimit, logger)
		if err != nil {
			return err
		}
		defer func() { _ = nc.Drain() }()
	}

	server := chiT.NewServer(a.engine, streamer, healthSvc, logger).
		WithDefaultLimit(cfg.Retrieval.DefaultLimit).
		WithQueryDegradation(cfg.HTTP.DegradeQueryErrors).
		WithCORS(cfg.HTTP.CORSOrigins)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// startNATS registers the retrieval endpoints as a micro service under cfg.Name.
func startNATS(cfg config.NATSConfig, a *app, defaultLimit int, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	srv, err := micro.AddService(nc, micro.Config{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: "ragdex retrieval engine",
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("add micro service: %w", err)
	}

	endpoints := endpoint.MakeEndpoints(a.engine, defaultLimit).WithLogging(logger.Named("nats"))
	if err := natsT.AddEndpoints(srv.AddGroup(cfg.Name), endpoints); err != nil {
		_ = srv.Stop()
		nc.Close()
		return nil, fmt.Errorf("add nats endpoints: %w", err)
	}

	logger.Info("NATS micro service started",
		zap.String("url", cfg.URL),
		zap.String("topic", cfg.Name+".>"),
	)
	return nc, nil
}
