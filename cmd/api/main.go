package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"docchat/internal/api"
	"docchat/internal/config"
	"docchat/internal/coordinator"
	"docchat/internal/ingest"
	"docchat/internal/providers"
	"docchat/internal/rag"
	"docchat/internal/session"
	"docchat/internal/store"
	"docchat/internal/telegram"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	tclient "go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	pm, err := providers.NewManager(cfg)
	if err != nil {
		log.Fatal(err)
	}

	pipeline := ingest.NewPipeline(pm, st, cfg.ChunkSize, cfg.ChunkOverlap, cfg.EmbedDim)
	engine := rag.NewEngine(pm, pm, st, session.NewMemoryStore(), cfg)

	opts := []coordinator.Option{}
	if cfg.TemporalAddress != "" {
		tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			log.Fatal(err)
		}
		defer tc.Close()
		opts = append(opts, coordinator.WithTemporal(tc, cfg.TemporalTaskQueue))
	}
	coord := coordinator.New(pipeline, engine, st, opts...)

	registry := telegram.NewRegistry(cfg.WebhookURL, coord.Answer)
	defer registry.Shutdown()
	if cfg.BotToken != "" {
		if err := registry.Configure(context.Background(), telegram.ChannelConfig{
			Token:       cfg.BotToken,
			BotUsername: cfg.BotUsername,
			Collection:  cfg.DefaultCollection,
		}); err != nil {
			log.Fatal(err)
		}
	}

	h := api.NewServer(cfg, coord, registry)
	log.Printf("docchat api listening on %s store=%q llm_providers=%q embed_providers=%q", cfg.APIAddr, cfg.StoreDriver, cfg.LLMProviders, cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
