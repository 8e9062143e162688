package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/lineage/internal/app"
	"github.com/agenthands/lineage/internal/config"
	"github.com/agenthands/lineage/internal/logger"
	"github.com/agenthands/lineage/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfg := config.Default()
	if path := os.Getenv("LINEAGE_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	l, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Sync()

	ctx := context.Background()
	decider := server.NewHTTPDecider(l)
	a, err := app.New(ctx, cfg, l, app.Options{Decider: decider})
	if err != nil {
		l.Fatal("Failed to start", "error", err)
	}
	defer a.Close(ctx)

	srv := server.NewServer(a.Catalog, a.Pipeline, decider, l)
	defer srv.Close()
	r := srv.SetupRouter()

	l.Info("Starting server", "port", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		l.Error("Server stopped", "error", err)
	}
}
