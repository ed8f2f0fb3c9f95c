package main

import (
	"context"
	"log"

	"github.com/geekpunk/CareCompassConcept/internal/bootstrap"
	"github.com/geekpunk/CareCompassConcept/internal/shared/config"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close(ctx)

	addr := server.Addr(cfg.Port)
	log.Printf("Starting CareCompass backend on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
