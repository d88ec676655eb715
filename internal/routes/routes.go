package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/taka-pay/taka_pay/internal/audit"
	"github.com/taka-pay/taka_pay/internal/config"
	"github.com/taka-pay/taka_pay/internal/ledger"
	"github.com/taka-pay/taka_pay/internal/middleware"
	"github.com/taka-pay/taka_pay/internal/notification"
	"github.com/taka-pay/taka_pay/internal/rates"
	"github.com/taka-pay/taka_pay/internal/transfer"
	"github.com/taka-pay/taka_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Notifier notification.Notifier
	Archiver audit.Archiver
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
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
	app.Use(middleware.AccessLog(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	var store ledger.Store
	var rateProvider rates.Provider
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		rateProvider = rates.NewPostgresProvider(d.DB)
	} else {
		store = ledger.NewInMemory()
		rateProvider = rates.Static{}
	}

	// The system account must exist before the engine can collect fees.
	if _, err := store.Entry(context.Background(), d.Cfg.SystemOwnerID); err != nil {
		if _, err := store.CreateEntry(context.Background(), d.Cfg.SystemOwnerID, 0, ledger.StatusActive); err != nil {
			return fmt.Errorf("provision system account: %w", err)
		}
	}

	walletSvc := wallet.NewService(store, d.Cfg.OpeningBalance)
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}
	transferSvc, err := transfer.NewService(store, rateProvider, d.Cfg.SystemOwnerID, notifier, d.Archiver, d.Logger)
	if err != nil {
		return err
	}

	walletHandler := wallet.NewHandler(walletSvc)
	transferHandler := transfer.NewHandler(transferSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterTransferRoutes(api, transferHandler)

	return nil
}
