package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cuadre-backend/internal/admin"
	"cuadre-backend/internal/audit"
	"cuadre-backend/internal/auth"
	"cuadre-backend/internal/config"
	"cuadre-backend/internal/dashboard"
	"cuadre-backend/internal/database"
	"cuadre-backend/internal/fee"
	"cuadre-backend/internal/ledger"
	"cuadre-backend/internal/models"
	"cuadre-backend/internal/settlement"
	"cuadre-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	evidence, err := storage.FromConfig(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("[FATAL] evidence storage: %v", err)
	}

	calc := fee.NewCalculator(fee.FlatPolicy{Rider: cfg.SuggestedRiderFee, Courier: cfg.SuggestedCourierFee})
	svc := settlement.NewService(database.DB, calc)
	orders := ledger.New(database.DB)

	app := fiber.New(fiber.Config{
		BodyLimit: 12 << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Printf("Unexpected error [%v]: %v", c.Locals("requestid"), err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error inesperado del servidor",
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "local" {
		app.Static(cfg.Storage.LocalURLPrefix, cfg.Storage.LocalDir)
	}

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler())
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler())

	reviewers := auth.RequireRole(models.RoleAdmin, models.RoleCourier)
	submitters := auth.RequireRole(models.RoleCourier, models.RoleEcommerce, models.RoleRider)

	// Cuadre de saldo
	protected.Get("/settlements/summary", settlement.SummaryHandler(svc))
	protected.Get("/settlements/summary/export", settlement.ExportSummaryHandler(svc))
	protected.Post("/settlements/submit", submitters, settlement.SubmitHandler(svc))
	protected.Post("/settlements/mark-settled", reviewers, settlement.MarkSettledHandler(svc))
	protected.Get("/settlements", settlement.ListBatchesHandler(svc))
	protected.Get("/settlements/:id", settlement.GetBatchHandler(svc))
	protected.Post("/settlements/:id/validate", reviewers, settlement.ValidateHandler(svc))
	protected.Post("/settlements/:id/observe", reviewers, settlement.ObserveHandler(svc))

	// Dashboard
	protected.Get("/dashboard/collections-chart", dashboard.CollectionsChartHandler(svc, cfg.Location))

	// Pedidos
	protected.Get("/orders", ledger.ListOrdersHandler(orders))
	protected.Post("/orders", reviewers, ledger.CreateOrderHandler(orders))
	protected.Post("/orders/import", reviewers, ledger.ImportOrdersHandler(orders, cfg.Location))
	protected.Post("/orders/:id/fee", reviewers, settlement.UpdateFeeHandler(svc))

	// Comprobantes
	protected.Post("/evidence", storage.UploadEvidenceHandler(evidence))

	// Audit logs
	protected.Get("/audit-logs", reviewers, audit.ListAuditLogsHandler())

	// Admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/couriers", admin.CreateCourierHandler())
	adminRoutes.Get("/couriers", admin.ListCouriersHandler())
	adminRoutes.Get("/couriers/:id", admin.GetCourierHandler())
	adminRoutes.Put("/couriers/:id", admin.UpdateCourierHandler())
	adminRoutes.Delete("/couriers/:id", admin.DeleteCourierHandler())

	adminRoutes.Post("/sedes", admin.CreateSedeHandler())
	adminRoutes.Get("/sedes", admin.ListSedesHandler())
	adminRoutes.Get("/sedes/:id", admin.GetSedeHandler())
	adminRoutes.Put("/sedes/:id", admin.UpdateSedeHandler())
	adminRoutes.Delete("/sedes/:id", admin.DeleteSedeHandler())
	adminRoutes.Post("/sedes/:id/users", admin.CreateSedeUserHandler())
	adminRoutes.Get("/sedes/:id/users", admin.ListSedeUsersHandler())

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("[WARN] shutdown: %v", err)
		}
	}()

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
