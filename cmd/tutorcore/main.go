// Package main boots the tutoring response service and wires application
// dependencies.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verbalearn/tutorcore/internal/config"
	"github.com/verbalearn/tutorcore/internal/contextstore"
	"github.com/verbalearn/tutorcore/internal/handler"
	"github.com/verbalearn/tutorcore/internal/models"
	"github.com/verbalearn/tutorcore/internal/pipeline"
	"github.com/verbalearn/tutorcore/internal/repository"
	"github.com/verbalearn/tutorcore/internal/router"
	"github.com/verbalearn/tutorcore/internal/semcache"
	"github.com/verbalearn/tutorcore/internal/session"
	"github.com/verbalearn/tutorcore/internal/speech"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	slog.Info("configuration loaded",
		"economy_model", cfg.EconomyModel,
		"standard_model", cfg.StandardModel,
		"premium_model", cfg.PremiumModel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to parse redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, running without shared context", "error", err.Error())
			redisClient = nil
		}
	}

	openaiClient, err := models.NewOpenAIClient(cfg.OpenAIAPIKey)
	if err != nil {
		log.Fatalf("failed to create openai client: %v", err)
	}

	llms := make(map[router.Tier]models.LLM, 3)
	for tier, name := range map[router.Tier]string{
		router.TierEconomy:  cfg.EconomyModel,
		router.TierStandard: cfg.StandardModel,
		router.TierPremium:  cfg.PremiumModel,
	} {
		llm, err := models.NewOpenAILLM(openaiClient, name)
		if err != nil {
			log.Fatalf("failed to create %s model: %v", tier, err)
		}
		llms[tier] = llm
	}

	synth, err := models.NewOpenAISynthesizer(openaiClient, cfg.TTSModel)
	if err != nil {
		log.Fatalf("failed to create synthesizer: %v", err)
	}
	transcriber, err := models.NewOpenAITranscriber(openaiClient, cfg.STTModel)
	if err != nil {
		log.Fatalf("failed to create transcriber: %v", err)
	}
	embedder, err := models.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}

	cache := semcache.New(embedder, semcache.Options{
		Threshold: cfg.CacheThreshold,
		Capacity:  cfg.CacheCapacity,
		ScanLimit: cfg.CacheScanLimit,
		TTL:       time.Duration(cfg.CacheTTLSecs) * time.Second,
	})
	if entries, err := store.CacheEntries.Recent(ctx, cfg.CacheCapacity); err != nil {
		slog.Warn("cache warmup skipped", "error", err.Error())
	} else {
		cache.Warm(entries)
		slog.Info("semantic cache warmed", "entries", len(entries))
	}

	mgr := session.NewManager(store.Sessions, session.NewStateMachine(session.DefaultThresholds()))

	var dist speech.DistKV
	if redisClient != nil {
		dist = speech.NewRedisKV(redisClient)
	}
	dispatcher := speech.NewDispatcher(synth, speech.NewTTSCache(256, dist), cfg.CompressThreshold)

	p, err := pipeline.New(pipeline.Config{
		Sessions: mgr,
		Contexts: contextstore.New(redisClient, 24*time.Hour),
		Cache:    cache,
		Router: router.New(
			router.TierConfig{Model: cfg.EconomyModel, CostPerMillionTokens: 0.15},
			router.TierConfig{Model: cfg.StandardModel, CostPerMillionTokens: 2.5},
			router.TierConfig{Model: cfg.PremiumModel, CostPerMillionTokens: 15},
		),
		LLMs:       llms,
		Dispatcher: dispatcher,
		Ledger:     store.Messages,
		Persister:  store.CacheEntries,
	})
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	chat := handler.NewChatHandler(p, mgr)
	ws := handler.NewWSHandler(p, mgr, transcriber)

	mux := http.NewServeMux()
	mux.Handle("/ws/voice", ws)
	mux.HandleFunc("/chat/stream", chat.Stream)
	mux.HandleFunc("/sessions/", chat.Status)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		log.Fatalf("server failed: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err.Error())
	}
	slog.Info("server shutdown complete")
}
