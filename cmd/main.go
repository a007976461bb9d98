package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/app"
	"kiosk-orchestrator-service/internal/buffer"
	"kiosk-orchestrator-service/internal/clock"
	"kiosk-orchestrator-service/internal/config"
	"kiosk-orchestrator-service/internal/events"
	"kiosk-orchestrator-service/internal/httpapi"
	"kiosk-orchestrator-service/internal/hub"
	"kiosk-orchestrator-service/internal/observability"
	"kiosk-orchestrator-service/internal/orchestrator"
	"kiosk-orchestrator-service/internal/provider/llm"
	"kiosk-orchestrator-service/internal/provider/llm/gemini"
	llmstub "kiosk-orchestrator-service/internal/provider/llm/stub"
	"kiosk-orchestrator-service/internal/provider/stt"
	"kiosk-orchestrator-service/internal/provider/stt/google"
	sttstub "kiosk-orchestrator-service/internal/provider/stt/stub"
	"kiosk-orchestrator-service/internal/provider/tts"
	"kiosk-orchestrator-service/internal/scheduler"
	"kiosk-orchestrator-service/internal/staff"
	"kiosk-orchestrator-service/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	logger := application.Logger

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Application start failed")
	}

	clk := clock.System{}
	ids := clock.UUIDs{}

	st, err := store.Open(cfg.Service.DBPath, clk, ids, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("dbPath", cfg.Service.DBPath).Msg("Failed to open pending store")
	}

	publisher := events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicApprovals: cfg.Kafka.TopicApprovals,
		TopicSummaries: cfg.Kafka.TopicSummaries,
		Principal:      cfg.Kafka.Principal,
	})

	transcriber, llmEngine, synth := buildProviders(cfg, ids, logger)

	registry := staff.NewRegistry(cfg.Staff.Passcode, cfg.Staff.SessionTTL, clk, ids, logger)
	broadcast := hub.New(registry.Valid, logger)

	orch := orchestrator.New(orchestrator.Config{
		Store:  st,
		Hub:    broadcast,
		STT:    transcriber,
		LLM:    llmEngine,
		Clock:  clk,
		IDs:    ids,
		Logger: logger,
		BufferLimits: buffer.Limits{
			MaxMessages:            cfg.Buffer.MaxMessages,
			MaxMessageChars:        cfg.Buffer.MaxMessageChars,
			MaxTotalChars:          cfg.Buffer.MaxTotalChars,
			FoldExcerptChars:       cfg.Buffer.FoldExcerptChars,
			MaxRunningSummaryChars: cfg.Buffer.MaxRunningSummaryChars,
		},
		InactivityTimeout: cfg.Scheduler.InactivityTimeout,
	})

	sched := scheduler.New(cfg.Scheduler.TickInterval, orch, st, registry, logger)
	sched.Start()

	ready := func() bool { return orch.Health(context.Background()) == nil }
	obs := observability.NewServer(cfg.Observability.Addr, ready)
	obs.Start()

	router := httpapi.NewRouter(httpapi.Deps{
		Orchestrator:  orch,
		Hub:           broadcast,
		Store:         st,
		Staff:         registry,
		Publisher:     publisher,
		TTS:           synth,
		Logger:        logger,
		MaxAudioBytes: cfg.Service.MaxAudioBytes,
		SSEKeepalive:  cfg.Service.SSEKeepalive,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Service.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("Shutdown signal received")
	sched.Stop()

	// Closing the hub terminates every open stream so Shutdown below is
	// bounded in time.
	broadcast.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := obs.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Observability shutdown failed")
	}

	if err := st.Close(); err != nil {
		logger.Error().Err(err).Msg("Store close failed")
	}
	if err := publisher.Close(); err != nil {
		logger.Error().Err(err).Msg("Publisher close failed")
	}
	if c, ok := transcriber.(interface{ Close() error }); ok {
		_ = c.Close()
	}

	application.Shutdown()
}

// buildProviders selects the STT, LLM, and TTS adapters from configuration,
// falling back to stubs on construction failure so the kiosk still boots.
func buildProviders(cfg *config.Config, ids clock.IDGenerator, logger zerolog.Logger) (stt.Transcriber, llm.Engine, tts.Synthesizer) {
	var transcriber stt.Transcriber = sttstub.New()
	if cfg.Providers.STTProvider == "google" {
		g, err := google.New(context.Background(), cfg.Providers.STTLanguageCode, int32(cfg.Providers.STTSampleRateHz))
		if err != nil {
			logger.Error().Err(err).Msg("Google STT unavailable, using stub")
		} else {
			transcriber = g
		}
	}

	var llmEngine llm.Engine = llmstub.New()
	if cfg.Providers.LLMProvider == "gemini" {
		g, err := gemini.New(context.Background(), cfg.Providers.LLMModel, ids)
		if err != nil {
			logger.Error().Err(err).Msg("Gemini unavailable, using stub")
		} else {
			llmEngine = g
		}
	}

	var synth tts.Synthesizer = &tts.Stub{}
	if cfg.Providers.TTSProvider == "engine" {
		synth = tts.NewEngine(cfg.Providers.TTSEngineURL, cfg.Providers.TTSSpeaker)
	}

	return transcriber, llmEngine, synth
}
