package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"subtrack/internal/config"
	"subtrack/internal/storage/mongodb"
	"subtrack/internal/storage/sqlite"
)

type reaper interface {
	DeleteStaleRefreshDigests(ctx context.Context, now time.Time) (int64, error)
}

func main() {
	var configPath string
	var reap bool
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.BoolVar(&reap, "reap", false, "delete expired refresh digests once")
	flag.Parse()

	cfg := config.MustLoad()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store reaper

	switch cfg.Storage.Driver {
	case config.StorageMongo:
		log.Println("Connecting to MongoDB...")

		storage, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.Fatalf("failed to connect to mongodb: %v", err)
		}
		defer storage.Close(ctx)

		log.Println("MongoDB connected, indexes created successfully")
		store = storage
	case config.StorageSQLite:
		if cfg.Storage.Path == "" {
			log.Fatal("storage.path is required for sqlite")
		}

		applied, err := sqlite.Migrate(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		if applied {
			log.Println("migrations applied successfully")
		} else {
			log.Println("no migrations to apply")
		}

		if !reap {
			break
		}

		storage, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("failed to open sqlite: %v", err)
		}
		defer storage.Close()

		store = storage
	default:
		log.Fatalf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if reap {
		n, err := store.DeleteStaleRefreshDigests(ctx, time.Now())
		if err != nil {
			log.Fatalf("failed to reap refresh digests: %v", err)
		}
		log.Printf("reaped %d expired refresh digests", n)
	}

	fmt.Println("Database initialization completed successfully")
}
