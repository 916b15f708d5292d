package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/evmartinez/airwatch/internal/api"
	"github.com/evmartinez/airwatch/internal/config"
	"github.com/evmartinez/airwatch/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection error: %v", err)
	}
	defer pg.Close()

	srv := api.New(cfg, pg)
	log.Printf("export API listening on %s", cfg.ListenAddr())

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
