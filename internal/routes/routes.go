package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mosala-ledger/mosala/internal/account"
	"github.com/mosala-ledger/mosala/internal/config"
	"github.com/mosala-ledger/mosala/internal/ledger"
	"github.com/mosala-ledger/mosala/internal/middleware"
	"github.com/mosala-ledger/mosala/internal/notification"
	"github.com/mosala-ledger/mosala/internal/pricing"
	"github.com/mosala-ledger/mosala/internal/store"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. Backend selection
// happens here and only here: the ledger engine is built once against the
// store interface, whichever implementation backs it.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var balanceStore store.Store
	if d.DB != nil {
		balanceStore = store.NewPostgres(d.DB, d.Cfg.LockWait)
	} else {
		balanceStore = store.NewMemory(d.Cfg.LockWait)
	}

	var accountRepo account.Repository
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
	} else {
		accountRepo = account.NewMemoryRepository()
	}

	priceTable, err := d.Cfg.PriceTable()
	if err != nil {
		return err
	}
	staticOracle := pricing.NewStaticOracle(priceTable)
	var oracle pricing.Oracle = staticOracle
	if d.Cache != nil {
		oracle = pricing.NewRedisOracle(d.Cache, staticOracle)
	}

	accountSvc := account.NewService(accountRepo, balanceStore)
	notifier := notification.NewLoggerNotifier(d.Logger)
	engine := ledger.New(balanceStore, accountRepo, oracle, notifier, d.Logger)

	accountHandler := account.NewHandler(accountSvc)
	ledgerHandler := ledger.NewHandler(engine)

	api := app.Group("/api/v1", middleware.OwnerIdentity())
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
		api.Use(middleware.MutationRateLimit(d.Cache, d.Cfg.RatePerMinute))
	}

	RegisterAccountRoutes(api, accountHandler)
	RegisterLedgerRoutes(api, ledgerHandler)

	return nil
}
