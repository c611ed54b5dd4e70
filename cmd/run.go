package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ladlebot/ladle/internal/bot"
	"github.com/ladlebot/ladle/internal/config"
	"github.com/ladlebot/ladle/internal/history"
	"github.com/ladlebot/ladle/internal/imagegen"
	"github.com/ladlebot/ladle/internal/llm"
	"github.com/ladlebot/ladle/internal/log"
	"github.com/ladlebot/ladle/internal/observability"
	"github.com/ladlebot/ladle/internal/queue"
	"github.com/ladlebot/ladle/internal/ratelimit"
	"github.com/ladlebot/ladle/internal/stats"
	"github.com/ladlebot/ladle/internal/vision"
	"github.com/ladlebot/ladle/internal/webextract"
)

const shutdownTimeout = 30 * time.Second

// runBot wires every component and runs until SIGINT or SIGTERM.
func runBot(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})
	logger.Info("starting ladle", "version", AppVersion, "model", cfg.ModelName)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var shutdownTracing func(context.Context) error
	if cfg.Tracing.Enabled {
		shutdownTracing, err = observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
	}

	completer, err := llm.New(ctx, cfg.APIKey(), cfg.ModelName,
		cfg.LLMPerSecond, cfg.LLMBurst, cfg.LLMTimeout(), logger)
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	fetcher := webextract.NewFetcher(cfg.URLFetchTimeout(), logger)
	assembler := history.New(fetcher, cfg.CacheTTL(), cfg.MaxURLsPerMessage, logger)

	terms, err := imagegen.LoadTermSet(cfg.ThemesFile, cfg.CharactersFile, cfg.StylesFile)
	if err != nil {
		return fmt.Errorf("loading term files: %w", err)
	}
	imageClient := imagegen.NewClient(cfg.ImageServerURL, cfg.ImageTimeout(), logger)
	pipeline := imagegen.NewPipeline(imageClient, completer, cfg.FancyInstruction, logger)

	var describer vision.Describer
	if cfg.AnalyzeImageURL != "" {
		describer = vision.New(cfg.AnalyzeImageURL, logger)
	}

	jobQueue := queue.New(logger)
	limiter := ratelimit.New(cfg.MaxInteractionsPerMinute, cfg.OwnerIDs, cfg.ExemptRoles, logger)
	store := stats.New(cfg.StatsFile, logger)

	b, err := bot.New(bot.Options{
		Config:    cfg,
		Completer: completer,
		Assembler: assembler,
		Pipeline:  pipeline,
		Terms:     terms,
		Queue:     jobQueue,
		Limiter:   limiter,
		Stats:     store,
		Describer: describer,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	worker := queue.NewWorker(jobQueue, b, logger)
	worker.Start(context.WithoutCancel(ctx))

	if err := b.Start(); err != nil {
		jobQueue.Shutdown()
		worker.Wait()
		return fmt.Errorf("starting bot: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Order matters: stop taking events, discard queued jobs, let the
	// in-flight job finish, then flush traces.
	if err := b.Stop(); err != nil {
		logger.Warn("discord close failed", "error", err)
	}
	jobQueue.Shutdown()

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("worker did not finish before shutdown deadline")
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}

	logger.Info("ladle stopped")
	return nil
}
