package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/vape-product-scraper/internal/config"
	"github.com/maltedev/vape-product-scraper/internal/database"
	"github.com/maltedev/vape-product-scraper/internal/events"
	"github.com/maltedev/vape-product-scraper/internal/logger"
	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/maltedev/vape-product-scraper/internal/parser"
	"github.com/maltedev/vape-product-scraper/internal/pipeline"
	"github.com/maltedev/vape-product-scraper/internal/storage"
)

func main() {
	var (
		site = flag.String("site", "", "Site whose scrape to process: "+strings.Join(parser.Sites(), ", "))
		in   = flag.String("in", "", "Input CSV path (default <output_dir>/<site>_products.csv)")
		out  = flag.String("out", "", "Output JSON path (default <output_dir>/<site>_structured.json)")

		requeueDead = flag.Bool("requeue-dead", false, "Retry the site's dead-lettered events before relaying")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	adapter, err := parser.Lookup(*site)
	if err != nil {
		log.Error("invalid site", "error", err)
		os.Exit(2)
	}

	inPath, outPath := *in, *out
	if inPath == "" {
		inPath = storage.RawPath(cfg.Scraper.OutputDir, adapter.Name())
	}
	if outPath == "" {
		outPath = storage.MergedPath(cfg.Scraper.OutputDir, adapter.Name())
	}

	products, err := storage.ReadProducts(inPath)
	if errors.Is(err, storage.ErrInputNotFound) {
		log.Error("scraped data not found, run the scraper first", "path", inPath)
		os.Exit(1)
	}
	if err != nil {
		log.Error("failed to read products", "path", inPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner(cfg, log)
	merged, err := runner.Extract(ctx, adapter, products)
	if err != nil {
		log.Error("extraction failed", "error", err)
		os.Exit(1)
	}

	if err := storage.WriteMerged(outPath, merged); err != nil {
		log.Error("failed to write merged products", "path", outPath, "error", err)
		os.Exit(1)
	}
	log.Info("extraction completed", "site", adapter.Name(), "products", len(merged), "output", outPath)

	if cfg.Database.Enabled {
		if err := persist(ctx, cfg, log, adapter.Name(), merged, *requeueDead); err != nil {
			log.Error("failed to persist products", "error", err)
			os.Exit(1)
		}
	}
}

// persist upserts the batch with its outbox events and, with Redis enabled,
// relays the events right away.
func persist(ctx context.Context, cfg *config.Config, log *slog.Logger, site string, merged []models.MergedProduct, requeueDead bool) error {
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	outbox := database.NewOutboxRepository(db)
	if requeueDead {
		requeued, err := outbox.RequeueDeadLetters(ctx, site)
		if err != nil {
			return err
		}
		log.Info("dead letters requeued", "site", site, "count", requeued)
	}

	publisher := events.NewPublisher(db, cfg.Redis.Stream, log)
	if _, err := publisher.PublishBatch(ctx, site, merged); err != nil {
		return err
	}

	if !cfg.Redis.Enabled {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	relay := database.NewRelay(outbox, redisClient, log, database.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
	})
	for {
		published, err := relay.Drain(ctx)
		if err != nil {
			return err
		}
		if published == 0 {
			break
		}
		log.Info("events relayed", "count", published)
	}
	return nil
}
