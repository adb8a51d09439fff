// Command feed-import backfills the catalog from gzip NDJSON product dumps
// of one or more distributor feeds.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/catalog-service/internal/domain/uow"
	"github.com/xenking/catalog-service/internal/ingest"
	"github.com/xenking/catalog-service/internal/integration"
	"github.com/xenking/catalog-service/internal/storage/memstore"
	"github.com/xenking/catalog-service/internal/storage/postgres"
)

func main() {
	var (
		pattern          string
		databaseURL      string
		integrationsFile string
		integrationName  string
		defaultImage     string
		dryRun           bool
	)

	flag.StringVar(&pattern, "feeds", "data/*.ndjson.gz", "glob matching the gzip NDJSON feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&integrationsFile, "integrations", "integrations.yaml", "YAML file describing upstream integrations")
	flag.StringVar(&integrationName, "integration", "", "name of the integration the feeds belong to")
	flag.StringVar(&defaultImage, "default-image", "", "image assigned to imported products and brands")
	flag.BoolVar(&dryRun, "dry-run", false, "replay into an in-memory store instead of PostgreSQL")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, config{
		pattern:          pattern,
		databaseURL:      databaseURL,
		integrationsFile: integrationsFile,
		integrationName:  integrationName,
		defaultImage:     defaultImage,
		dryRun:           dryRun,
	}); err != nil {
		slog.Error("feed import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("feed import completed successfully")
}

type config struct {
	pattern          string
	databaseURL      string
	integrationsFile string
	integrationName  string
	defaultImage     string
	dryRun           bool
}

func run(ctx context.Context, cfg config) error {
	files, err := filepath.Glob(cfg.pattern)
	if err != nil {
		return errors.Wrap(err, "match feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no feed files match %q", cfg.pattern)
	}

	src, err := findIntegration(cfg.integrationsFile, cfg.integrationName)
	if err != nil {
		return err
	}

	// Pass 1: one bloom filter of upstream product ids per feed.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: estimate how many products each feed shares with the others.
	slog.Info("pass 2: estimating cross-feed overlap")

	if _, err := estimateOverlap(ctx, files, filters); err != nil {
		return errors.Wrap(err, "estimate overlap")
	}

	// Pass 3: replay every event through the ingestion handler.
	var u uow.UnitOfWork
	if cfg.dryRun {
		slog.Info("dry run: replaying into memory")
		u = memstore.New()
	} else {
		slog.Info("connecting to database")

		pool, err := postgres.NewPool(ctx, cfg.databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		u = postgres.NewTxManager(pool)
	}

	stats, err := replay(ctx, ingest.NewHandlers(u, nil, cfg.defaultImage), src, files)
	if err != nil {
		return errors.Wrap(err, "replay feeds")
	}

	slog.Info("replay complete",
		slog.Int("applied", stats.outcomes[ingest.Applied]),
		slog.Int("duplicates", stats.outcomes[ingest.SkippedDuplicate]),
		slog.Int("invalid", stats.invalid),
	)
	return nil
}

// findIntegration picks the named integration, or the only one when name is
// empty.
func findIntegration(path, name string) (integration.Integration, error) {
	list, err := integration.Load(path)
	if err != nil {
		return integration.Integration{}, errors.Wrap(err, "load integrations")
	}
	if name == "" && len(list) == 1 {
		return list[0], nil
	}
	for _, in := range list {
		if in.Name == name {
			return in, nil
		}
	}
	return integration.Integration{}, errors.Errorf("integration %q not found in %s", name, path)
}
