package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Naman6019/News-Agent/internal/config"
	"github.com/Naman6019/News-Agent/internal/dedup"
	"github.com/Naman6019/News-Agent/internal/digest"
	"github.com/Naman6019/News-Agent/internal/feed"
	"github.com/Naman6019/News-Agent/internal/logger"
	"github.com/Naman6019/News-Agent/internal/scheduler"
	"github.com/Naman6019/News-Agent/internal/scraper"
	"github.com/Naman6019/News-Agent/internal/summarizer"
	"github.com/Naman6019/News-Agent/internal/whatsapp"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := feed.NewFetcher(cfg.FetchTimeout)
	aggregator := feed.NewAggregator(fetcher, cfg.Categories, cfg.MaxArticlesPerFeed, cfg.FreshnessWindow)
	enricher := scraper.New(cfg.FetchTimeout, cfg.ScrapeConcurrency)
	registry := dedup.NewFileRegistry(cfg.RegistryPath)
	assembler := digest.NewAssembler(cfg.CategoryNames(), cfg.MessageCharLimit)

	sched := scheduler.New(ctx, cfg, scheduler.Deps{
		Aggregator: aggregator,
		Registry:   registry,
		Assembler:  assembler,
		Enricher:   enricher,
		NewSummarizer: func(ctx context.Context) (scheduler.Summarizer, error) {
			client := summarizer.New(summarizer.Config{
				BaseURL:       cfg.OllamaBaseURL,
				Model:         cfg.OllamaModel,
				MaxTokens:     cfg.OllamaMaxTokens,
				Temperature:   cfg.OllamaTemperature,
				MaxSummaryLen: cfg.MaxSummaryLength,
				RetryAttempts: cfg.RetryAttempts,
				RetryDelay:    cfg.RetryDelay,
			})
			if err := client.Ping(ctx); err != nil {
				return nil, err
			}
			return client, nil
		},
		NewGateway: func() (scheduler.Gateway, error) {
			loc, err := time.LoadLocation(cfg.Timezone)
			if err != nil {
				loc = time.Local
			}
			return whatsapp.New(whatsapp.Config{
				AccountSID:    cfg.TwilioAccountSID,
				AuthToken:     cfg.TwilioAuthToken,
				FromNumber:    cfg.TwilioFromNumber,
				ToNumber:      cfg.RecipientNumber,
				CharLimit:     cfg.MessageCharLimit,
				RetryAttempts: cfg.RetryAttempts,
				Location:      loc,
			})
		},
	})

	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
	}

	srv := newServer(cfg, sched, aggregator, registry, enricher, assembler)
	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.routes(),
	}

	go func() {
		logger.Info("http server listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}
