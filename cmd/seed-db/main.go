package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-service/internal/catalog"
	"github.com/xenking/catalog-service/internal/domain/auth"
	"github.com/xenking/catalog-service/internal/domain/category"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/storage/postgres"
)

type seedFile struct {
	TenantID   string         `json:"tenantId"`
	Categories []seedCategory `json:"categories"`
	Products   []seedProduct  `json:"products"`
}

type seedCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type seedProduct struct {
	Name       string              `json:"name"`
	BarCode    string              `json:"barCode"`
	CategoryID string              `json:"categoryId"`
	Images     []string            `json:"images"`
	Attributes []product.Attribute `json:"attributes"`
	InCase     int                 `json:"inCase"`
	Price      decimal.Decimal     `json:"price"`
	Cost       decimal.Decimal     `json:"cost"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to the catalog seed JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed with catalog write access (or CATALOG_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CATALOG_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CATALOG_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CATALOG_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CATALOG_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, pepper string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCategories(ctx, pool, seed); err != nil {
		return errors.Wrap(err, "seed categories")
	}

	if err := seedProducts(ctx, pool, seed); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCategories(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	repo := postgres.NewCategoryRepository(pool)
	for _, c := range seed.Categories {
		if err := repo.Upsert(ctx, category.Category{
			ID:       c.ID,
			TenantID: seed.TenantID,
			Name:     c.Name,
			Slug:     product.Slugify(c.Name),
		}); err != nil {
			return err
		}
		slog.Info("upserted category", slog.String("id", c.ID), slog.String("name", c.Name))
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	if len(seed.Products) == 0 {
		return nil
	}

	svc := catalog.NewService(catalog.Deps{
		UoW:        postgres.NewTxManager(pool),
		Repos:      postgres.NewRepositories(pool),
		Categories: postgres.NewCategoryRepository(pool),
	})

	in := make([]catalog.NewProduct, len(seed.Products))
	for i, p := range seed.Products {
		in[i] = catalog.NewProduct{
			TenantID:   seed.TenantID,
			Name:       p.Name,
			BarCode:    p.BarCode,
			CategoryID: p.CategoryID,
			Images:     p.Images,
			Attributes: p.Attributes,
			InCase:     p.InCase,
			Price:      p.Price,
			Cost:       p.Cost,
		}
	}

	slog.Info("creating products", slog.Int("count", len(in)))

	created, err := svc.BulkCreate(ctx, in)
	var ve *catalog.ValidationError
	if errors.As(err, &ve) && strings.HasPrefix(ve.Reason, "already exists") {
		slog.Info("products already seeded", slog.String("reason", ve.Reason))
		return nil
	}
	if err != nil {
		return err
	}

	for _, p := range created {
		slog.Info("created product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding API key")

	return postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      uuid.NewString(),
		KeyHash: auth.Hash(apiKey, []byte(pepper)),
		Name:    "seed",
		Scopes:  []string{auth.ScopeCatalogWrite},
	})
}
