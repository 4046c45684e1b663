package main

import (
	"context"
	"flag"
	"fmt"

	"focusroom/internal/config"
	"focusroom/internal/db"
	"focusroom/internal/logging"
)

func main() {
	status := flag.Bool("status", false, "list pending migrations without applying them")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}
	defer database.Close()

	migrator := db.NewMigrator(database, cfg.MigrationsDir, logger)
	ctx := context.Background()

	if *status {
		pending, err := migrator.Pending(ctx)
		if err != nil {
			logger.WithError(err).Fatal("list pending migrations")
		}
		for _, name := range pending {
			fmt.Println(name)
		}
		return
	}

	applied, err := migrator.Up(ctx)
	if err != nil {
		logger.WithError(err).Fatal("run migrations")
	}
	logger.WithField("applied", len(applied)).Info("database is up to date")
}
