// Command seed-db loads a product catalog, a demo reservation and an API key
// into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/respa-payments/internal/domain/auth"
	"github.com/xenking/respa-payments/internal/domain/product"
	"github.com/xenking/respa-payments/internal/domain/reservation"
	"github.com/xenking/respa-payments/internal/handler"
	"github.com/xenking/respa-payments/internal/repository"
)

type productJSON struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Type          string          `json:"type"`
	Name          string          `json:"name"`
	PretaxPrice   decimal.Decimal `json:"pretax_price"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
	PriceType     string          `json:"price_type"`
}

type options struct {
	databaseURL   string
	productsFile  string
	apiKey        string
	apiKeyPepper  string
	userID        string
	reservationID string
}

func main() {
	var o options

	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&o.productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally .gz compressed")
	flag.StringVar(&o.apiKey, "api-key", "", "API key to seed (or RESPA_SEED_API_KEY env)")
	flag.StringVar(&o.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or RESPA_API_KEY_PEPPER env)")
	flag.StringVar(&o.userID, "user-id", "demo-user", "user owning the seeded API key and reservation")
	flag.StringVar(&o.reservationID, "reservation-id", "demo-reservation", "id of the seeded reservation")
	flag.Parse()

	if o.databaseURL == "" {
		o.databaseURL = os.Getenv("DATABASE_URL")
	}
	if o.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if o.apiKey == "" {
		o.apiKey = os.Getenv("RESPA_SEED_API_KEY")
	}
	if o.apiKey == "" {
		slog.Error("API key is required: set --api-key or RESPA_SEED_API_KEY")
		os.Exit(1)
	}
	if o.apiKeyPepper == "" {
		o.apiKeyPepper = os.Getenv("RESPA_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, o); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, o options) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, o.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), o.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedReservation(ctx, repository.NewReservationRepository(pool), o); err != nil {
		return errors.Wrap(err, "seed reservation")
	}

	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), o); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// openCatalog opens path, transparently decompressing .gz files.
func openCatalog(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, path string) error {
	slog.Info("reading products file", slog.String("path", path))

	r, err := openCatalog(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	var products []productJSON
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, &product.Product{
			ID:            p.ID,
			SKU:           p.SKU,
			Type:          product.Type(p.Type),
			Name:          p.Name,
			PretaxPrice:   p.PretaxPrice,
			TaxPercentage: p.TaxPercentage,
			PriceType:     product.PriceType(p.PriceType),
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedReservation(ctx context.Context, repo *repository.ReservationRepository, o options) error {
	begin := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	res := &reservation.Reservation{
		ID:            o.reservationID,
		UserID:        o.userID,
		Begin:         begin,
		End:           begin.Add(2 * time.Hour),
		ReserverName:  "Demo Reserver",
		ReserverEmail: "demo@example.com",
		BillingStreet: "Demo street 1",
		BillingZip:    "00100",
		BillingCity:   "Helsinki",
	}
	if err := repo.Upsert(ctx, res); err != nil {
		return errors.Wrapf(err, "upsert reservation %s", res.ID)
	}

	slog.Info("upserted reservation",
		slog.String("id", res.ID),
		slog.Time("begin", res.Begin),
		slog.Time("end", res.End),
	)
	return nil
}

func seedAPIKey(ctx context.Context, repo *repository.APIKeyRepository, o options) error {
	slog.Info("seeding default API key")

	info := &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: handler.HashAPIKey([]byte(o.apiKeyPepper), o.apiKey),
		Name:    "Default test key",
		UserID:  o.userID,
		Scopes:  []string{auth.ScopeOrdersWrite},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
