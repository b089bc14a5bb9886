package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authgate/backend/internal/config"
	"github.com/authgate/backend/internal/database"
	"github.com/authgate/backend/internal/handlers"
	"github.com/authgate/backend/internal/middleware"
	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/internal/services"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	if err := utils.ConfigureSessionTokens(cfg.Session.Secret, cfg.Session.Algorithm, cfg.Session.TTL); err != nil {
		log.Fatalf("session token configuration failed: %v", err)
	}
	utils.ConfigureEncryption(cfg.Session.Secret)
	utils.ConfigureTOTP(cfg.TOTP.Issuer)
	utils.StartChallengeCleanup(5 * time.Minute)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	mailer := services.NewSMTPMailer(cfg.SMTP)
	ledger := services.NewTokenLedger(db)
	ledger.StartCleanup(1 * time.Hour)

	authHandler := handlers.NewAuthHandler(db, cfg, mailer, ledger)
	twoFactorHandler := handlers.NewTwoFactorHandler(db)
	usersHandler := handlers.NewUsersHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Get("/verify-email", authHandler.VerifyEmail)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Put("/forgot-password", authHandler.ForgotPassword)
	authRoutes.Post("/reset-password", authHandler.ResetPassword)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	twoFactorRoutes := api.Group("/auth/2fa")
	twoFactorRoutes.Post("/verify", twoFactorHandler.VerifyLogin)
	twoFactorRoutes.Get("/status", authMiddleware.RequireAuth, twoFactorHandler.Status)
	twoFactorRoutes.Post("/setup", authMiddleware.RequireAuth, twoFactorHandler.Setup)
	twoFactorRoutes.Post("/confirm", authMiddleware.RequireAuth, twoFactorHandler.Confirm)
	twoFactorRoutes.Post("/disable", authMiddleware.RequireAuth, twoFactorHandler.Disable)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth)
	userRoutes.Get("/", middleware.RequireRoles(models.UserRoleAdmin, models.UserRoleUser), usersHandler.List)
	userRoutes.Get("/:id", middleware.RequireRoles(models.UserRoleAdmin), usersHandler.Get)
	userRoutes.Put("/:id", middleware.RequireRoles(models.UserRoleAdmin), usersHandler.Update)
	userRoutes.Delete("/:id", middleware.RequireRoles(models.UserRoleAdmin), usersHandler.Delete)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
