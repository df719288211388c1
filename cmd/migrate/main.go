package main

import (
	"log/slog"
	"os"

	"basegraph.app/booking/core/config"
	"basegraph.app/booking/core/db"
)

func main() {
	cfg, err := config.Load(config.ServiceTypeMigrate)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := db.Migrate(cfg.DB.DSN); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}
