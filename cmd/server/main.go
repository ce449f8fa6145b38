package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/audit"
	"restoran-pos/internal/auth"
	"restoran-pos/internal/cashflow"
	"restoran-pos/internal/catalog"
	"restoran-pos/internal/config"
	"restoran-pos/internal/database"
	"restoran-pos/internal/events"
	"restoran-pos/internal/logger"
	"restoran-pos/internal/models"
	"restoran-pos/internal/orders"
	"restoran-pos/internal/production"
	"restoran-pos/internal/settlement"
	"restoran-pos/internal/tables"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	db, err := database.Open(cfg.DatabaseDSN, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}

	var pub events.Publisher = events.LogPublisher{Log: log}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange, log)
		if err != nil {
			log.Fatal("event broker", zap.Error(err))
		}
		defer amqpPub.Close()
		pub = amqpPub
	}

	gateway := catalog.NewGateway()
	tableSync := tables.NewSynchronizer(db, log)
	machine := production.NewMachine(db, pub, log)
	orderMgr := orders.NewManager(db, gateway, tableSync, production.NewRouter(gateway), machine, pub, log)
	cashMgr := cashflow.NewManager(db, cashflow.Thresholds{
		WarnPct:     cfg.VarianceWarnPct,
		CriticalPct: cfg.VarianceCriticalPct,
	}, log)
	ledger := settlement.NewLedger(db, gateway, tableSync, machine, cashMgr, cfg.TaxRate, pub, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{
					"error": fe.Message,
				})
			}
			if kind := apperr.KindOf(err); kind != 0 {
				return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
					"error": err.Error(),
					"kind":  kind.String(),
				})
			}
			log.Error("unexpected error",
				zap.String("request_id", c.GetRespHeader(requestIDHeader)),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "unexpected server error",
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOriginList(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + requestIDHeader,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))
	app.Use(requestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/login", auth.LoginHandler(db, cfg.JWTSecret))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	floor := auth.RequireRole(models.RoleBranchAdmin, models.RoleWaiter, models.RoleCashier)
	kitchen := auth.RequireRole(models.RoleBranchAdmin, models.RoleKitchen, models.RoleWaiter)
	till := auth.RequireRole(models.RoleBranchAdmin, models.RoleCashier)
	admin := auth.RequireRole(models.RoleBranchAdmin)

	protected.Get("/auth/me", auth.MeHandler())

	// Reference data
	protected.Get("/catalog/products", catalog.ListProductsHandler(db, gateway))
	protected.Get("/catalog/stations", catalog.ListStationsHandler(db, gateway))
	protected.Get("/catalog/payment-methods", catalog.ListPaymentMethodsHandler(db, gateway))

	// Tables
	protected.Post("/tables", admin, tables.CreateTableHandler(tableSync))
	protected.Get("/tables", floor, tables.ListTablesHandler(tableSync))
	protected.Get("/tables/:id", floor, tables.GetTableHandler(tableSync))
	protected.Get("/tables/:id/order", floor, orders.TableOrderHandler(orderMgr))
	protected.Post("/tables/:id/precheck", floor, tables.PrecheckHandler(tableSync))
	protected.Post("/tables/:id/out-of-service", admin, tables.ServiceStateHandler(tableSync, true))
	protected.Post("/tables/:id/in-service", admin, tables.ServiceStateHandler(tableSync, false))

	// Orders
	protected.Post("/orders/lines", floor, orders.SubmitLinesHandler(orderMgr))
	protected.Get("/orders", floor, orders.ListOrdersHandler(orderMgr))
	protected.Get("/orders/:id", floor, orders.GetOrderHandler(orderMgr))
	protected.Post("/orders/:id/cancel", floor, orders.CancelOrderHandler(orderMgr))

	// Production
	protected.Get("/stations/:id/tickets", kitchen, production.StationQueueHandler(machine))
	protected.Get("/orders/:id/tickets", kitchen, production.OrderTicketsHandler(machine))
	protected.Post("/tickets/:id/transition", kitchen, production.TransitionTicketHandler(machine))
	protected.Post("/ticket-items/:id/transition", kitchen, production.TransitionItemHandler(machine))

	// Settlement
	protected.Post("/orders/:id/invoice", till, settlement.EnsureInvoiceHandler(ledger))
	protected.Get("/orders/:id/settlement", till, settlement.SummaryHandler(ledger))
	protected.Post("/orders/:id/payments", till, settlement.RegisterPaymentHandler(ledger))
	protected.Post("/orders/:id/refund", till, settlement.RefundHandler(ledger))

	// Cash sessions
	protected.Post("/cash-sessions", till, cashflow.OpenSessionHandler(cashMgr))
	protected.Get("/cash-sessions/current", till, cashflow.CurrentSessionHandler(cashMgr))
	protected.Get("/cash-sessions/:id", till, cashflow.SessionReportHandler(cashMgr))
	protected.Post("/cash-sessions/:id/movements", till, cashflow.CreateMovementHandler(cashMgr))
	protected.Get("/cash-sessions/:id/movements", till, cashflow.ListMovementsHandler(cashMgr))
	protected.Post("/cash-sessions/:id/begin-close", till, cashflow.BeginCloseHandler(cashMgr))
	protected.Post("/cash-sessions/:id/close", till, cashflow.CloseSessionHandler(cashMgr))
	protected.Get("/cash-sessions/:id/export", till, cashflow.ExportCloseHandler(cashMgr))

	// Audit logs
	protected.Get("/audit-logs", admin, audit.ListAuditLogsHandler(db))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server listening", zap.String("port", cfg.HTTPPort))
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

// requestLogger tags every request with an id and logs it once it completes.
func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)

		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the ErrorHandler write the status before logging it
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	}
}
