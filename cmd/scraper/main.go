package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/vape-product-scraper/internal/config"
	"github.com/maltedev/vape-product-scraper/internal/logger"
	"github.com/maltedev/vape-product-scraper/internal/parser"
	"github.com/maltedev/vape-product-scraper/internal/pipeline"
	"github.com/maltedev/vape-product-scraper/internal/storage"
)

func main() {
	var (
		site     = flag.String("site", "", "Site to crawl: "+strings.Join(parser.Sites(), ", "))
		out      = flag.String("out", "", "Output CSV path (default <output_dir>/<site>_products.csv)")
		maxItems = flag.Int("max-items", 0, "Item budget (0 keeps the site default)")
		maxPages = flag.Int("max-pages", 0, "Listing page ceiling (0 keeps the site default)")
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

	path := *out
	if path == "" {
		path = storage.RawPath(cfg.Scraper.OutputDir, adapter.Name())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner(cfg, log)
	products, summary, err := runner.Crawl(ctx, adapter, *maxItems, *maxPages)
	if err != nil {
		log.Error("crawl failed", "error", err)
		os.Exit(1)
	}

	if err := storage.WriteProducts(path, products); err != nil {
		log.Error("failed to write products", "path", path, "error", err)
		os.Exit(1)
	}

	log.Info("scrape completed",
		"site", summary.Site,
		"run_id", summary.RunID,
		"items", summary.Items,
		"pages", summary.Pages,
		"degraded", summary.Degraded,
		"stop_reason", summary.StopReason,
		"output", path)
}
