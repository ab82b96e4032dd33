package main

import (
	"context"
	"log"
	"time"

	"docchat/internal/activities"
	"docchat/internal/config"
	"docchat/internal/store"
	"docchat/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	if cfg.TemporalAddress == "" {
		log.Fatal("DOCCHAT_TEMPORAL_ADDRESS must be set for the worker")
	}
	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	a, err := activities.New(cfg, st)
	if err != nil {
		log.Fatal(err)
	}
	activities.Register(w, a)

	log.Printf("docchat worker listening on %s queue=%s store=%q embed_providers=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.StoreDriver, cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
