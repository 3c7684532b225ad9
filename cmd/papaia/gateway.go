package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chuchurex/papaia.cl/internal/bus"
	"github.com/chuchurex/papaia.cl/internal/channel"
	"github.com/chuchurex/papaia.cl/internal/config"
	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/extract"
	"github.com/chuchurex/papaia.cl/internal/gateway"
	"github.com/chuchurex/papaia.cl/internal/httpapi"
	"github.com/chuchurex/papaia.cl/internal/llm"
	"github.com/chuchurex/papaia.cl/internal/orchestrator"
	"github.com/chuchurex/papaia.cl/internal/photo"
	"github.com/chuchurex/papaia.cl/internal/publish"
	"github.com/chuchurex/papaia.cl/internal/respond"
	"github.com/chuchurex/papaia.cl/internal/store"
)

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = newLogger(cfg)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	captureStore, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("capture store: %w", err)
	}
	defer closeStore()

	// Channel adapters. Webhook channels register their handlers on Start;
	// Telegram polls in its own goroutine.
	var webhooks []httpapi.WebhookChannel
	fetchers := extract.Fetchers{}

	if cfg.Channels.WhatsApp.Enabled {
		wa := channel.NewWhatsApp(channel.WhatsAppChannelConfig{Config: cfg.Channels.WhatsApp, Logger: logger})
		if err := wa.Start(ctx, messageBus); err != nil {
			return fmt.Errorf("whatsapp channel: %w", err)
		}
		webhooks = append(webhooks, wa)
		fetchers["whatsapp"] = wa
	}
	if cfg.Channels.Callbell.Enabled {
		cb := channel.NewCallbell(channel.CallbellChannelConfig{Config: cfg.Channels.Callbell, Logger: logger})
		if err := cb.Start(ctx, messageBus); err != nil {
			return fmt.Errorf("callbell channel: %w", err)
		}
		webhooks = append(webhooks, cb)
		fetchers["callbell"] = cb
	}
	if cfg.Channels.Telegram.Enabled {
		tg := channel.NewTelegram(channel.TelegramChannelConfig{Token: cfg.Channels.Telegram.Token, Logger: logger})
		fetchers["telegram"] = tg
		go func() {
			if err := tg.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel failed", "err", err)
			}
		}()
	}

	machine := orchestrator.New(orchestrator.Config{
		Extractor:            buildExtractor(cfg, fetchers),
		Studio:               buildStudio(cfg),
		Responder:            buildResponder(cfg),
		Publisher:            buildPublisher(cfg),
		MaxPhotosPerCategory: cfg.Photos.MaxPerCategory,
		MaxPhotosTotal:       cfg.Photos.MaxTotal,
		Logger:               logger,
	})

	gw := gateway.New(messageBus, captureStore, machine, logger)
	go gw.Run(ctx)

	go store.RunSweeper(ctx, captureStore, store.DefaultSweepInterval, logger)

	server := httpapi.New(httpapi.Config{
		Addr:     fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Store:    captureStore,
		Approver: gw,
		Webhooks: webhooks,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info("papaia gateway running", "version", version, "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func openStore(cfg *config.Config) (domain.CaptureStore, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		s, err := store.NewSQLite(cfg.Store.DBPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

// buildExtractor returns the model-backed extractor when an API key is
// configured, the regex fallback otherwise.
func buildExtractor(cfg *config.Config, fetchers extract.Fetchers) domain.Extractor {
	if cfg.LLM.APIKey == "" {
		logger.Warn("no LLM API key, using regex extraction only")
		return extract.NewRegexExtractor()
	}
	client := llm.NewClient(llm.Config{
		APIBase: cfg.LLM.APIBase,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Logger:  logger,
	})
	transcriber := llm.NewTranscriber(llm.TranscriberConfig{
		APIBase:  cfg.LLM.APIBase,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.WhisperModel,
		Language: cfg.LLM.Language,
		Logger:   logger,
	})
	return extract.NewLLMExtractor(extract.LLMExtractorConfig{
		Client:      client,
		Transcriber: transcriber,
		Fetchers:    fetchers,
		Logger:      logger,
	})
}

func buildStudio(cfg *config.Config) domain.PhotoStudio {
	if cfg.Photos.StudioEndpoint == "" {
		return photo.PassthroughStudio{}
	}
	return photo.NewHTTPStudio(photo.HTTPStudioConfig{
		Endpoint: cfg.Photos.StudioEndpoint,
		APIKey:   cfg.Photos.StudioAPIKey,
		Logger:   logger,
	})
}

func buildResponder(cfg *config.Config) domain.Responder {
	if cfg.LLM.APIKey == "" {
		return nil // fixed fallback templates only
	}
	client := llm.NewClient(llm.Config{
		APIBase: cfg.LLM.APIBase,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Logger:  logger,
	})
	return respond.NewLLMResponder(client, logger)
}

func buildPublisher(cfg *config.Config) domain.Publisher {
	dests, err := publish.LoadDestinations(cfg.Publish.DestinationsDir)
	if err != nil {
		logger.Warn("no publication destinations loaded", "dir", cfg.Publish.DestinationsDir, "err", err)
	}

	var copywriter *publish.Copywriter
	if cfg.LLM.APIKey != "" {
		client := llm.NewClient(llm.Config{
			APIBase: cfg.LLM.APIBase,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Logger:  logger,
		})
		copywriter = publish.NewCopywriter(client, logger)
	}

	var places *publish.PlacesClient
	if cfg.Publish.PlacesEndpoint != "" {
		places = publish.NewPlacesClient(cfg.Publish.PlacesEndpoint, cfg.Publish.PlacesAPIKey, logger)
	}

	return publish.NewHTTPPublisher(publish.PublisherConfig{
		Destinations: dests,
		Copywriter:   copywriter,
		Places:       places,
		Logger:       logger,
	})
}
