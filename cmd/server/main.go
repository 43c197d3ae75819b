package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/seungmin-w/molip-backend/internal/archive"
	"github.com/seungmin-w/molip-backend/internal/config"
	"github.com/seungmin-w/molip-backend/internal/httpapi"
	"github.com/seungmin-w/molip-backend/internal/hub"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()

	var sink archive.Sink
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("open archive", zap.Error(err))
		}
		sink = store
	} else {
		log.Info("DATABASE_URL not set, match archiving disabled")
	}

	ctx := context.Background()
	h := hub.NewHub(ctx, cfg.Rules, log, sink)

	handler := httpapi.SetupRoutes(h, log)

	log.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}
