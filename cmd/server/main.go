package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fileharbor/backend/internal/config"
	"github.com/fileharbor/backend/internal/database"
	"github.com/fileharbor/backend/internal/handlers"
	"github.com/fileharbor/backend/internal/middleware"
	"github.com/fileharbor/backend/internal/services"
	"github.com/fileharbor/backend/internal/storage"
	"github.com/fileharbor/backend/pkg/logger"
	"github.com/fileharbor/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureEncryption(cfg.JWT.Secret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	var storageClient storage.ObjectStorage
	switch cfg.Storage.Backend {
	case "s3":
		storageClient, err = storage.NewS3Client(cfg.S3)
	default:
		storageClient, err = storage.NewMinIOClient(cfg.MinIO)
	}
	if err != nil {
		log.Fatalf("object storage initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring storage bucket: %v", err)
	}

	accessService := services.NewAccessService(db)
	quotaService := services.NewQuotaService(db)
	copyService := services.NewCopyService(db, quotaService)
	linkFilesService := services.NewLinkFilesService(db)
	auditService := services.NewAuditService(db, storageClient)
	auditService.StartExporter(cfg.Audit.ExportInterval)

	authHandler := handlers.NewAuthHandler(db, auditService, cfg.Quota.DefaultStorageLimit)
	linksHandler := handlers.NewLinksHandler(db, storageClient, accessService, linkFilesService, quotaService, auditService)
	workspacesHandler := handlers.NewWorkspacesHandler(db, storageClient, accessService, linkFilesService, copyService, auditService)
	cloudHandler := handlers.NewCloudHandler(db, auditService)
	auditHandler := handlers.NewAuditHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
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
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	linkRoutes := api.Group("/links", authMiddleware.RequireAuth)
	linkRoutes.Post("/", linksHandler.Create)
	linkRoutes.Get("/", linksHandler.List)
	linkRoutes.Get("/files", linksHandler.ListWithFiles)
	linkRoutes.Get("/:id", linksHandler.Get)
	linkRoutes.Put("/:id", linksHandler.Update)
	linkRoutes.Delete("/:id", linksHandler.Delete)

	publicLinkRoutes := api.Group("/public/links")
	publicLinkRoutes.Get("/:slug", authMiddleware.OptionalAuth, linksHandler.PublicGet)
	publicLinkRoutes.Post("/:slug/batches", linksHandler.PublicCreateBatch)
	publicLinkRoutes.Post("/:slug/folders", linksHandler.PublicCreateFolder)
	publicLinkRoutes.Post("/:slug/files", linksHandler.PublicUpload)

	workspaceRoutes := api.Group("/workspaces", authMiddleware.RequireAuth)
	workspaceRoutes.Get("/", workspacesHandler.List)
	workspaceRoutes.Post("/", workspacesHandler.Create)
	workspaceRoutes.Get("/:id/tree", workspacesHandler.Tree)
	workspaceRoutes.Post("/:id/folders", workspacesHandler.CreateFolder)
	workspaceRoutes.Post("/:id/copy", workspacesHandler.CopyFromLink)
	workspaceRoutes.Post("/:id/copy-files", workspacesHandler.CopyFiles)

	api.Get("/files/:id/download", authMiddleware.RequireAuth, workspacesHandler.Download)
	api.Get("/files/:id/presign", authMiddleware.RequireAuth, workspacesHandler.Presign)

	api.Get("/audit", authMiddleware.RequireAuth, middleware.AdminOnly, auditHandler.List)

	cloudRoutes := api.Group("/cloud", authMiddleware.RequireAuth)
	cloudRoutes.Get("/accounts", cloudHandler.ListAccounts)
	cloudRoutes.Put("/accounts/:provider", cloudHandler.ConnectAccount)
	cloudRoutes.Delete("/accounts/:provider", cloudHandler.DisconnectAccount)
	cloudRoutes.Get("/transfers/:id", cloudHandler.GetTransfer)
	cloudRoutes.Post("/transfers", cloudHandler.StartTransfer)
	cloudRoutes.Get("/:provider/files", cloudHandler.ListFiles)
	cloudRoutes.Get("/:provider/search", cloudHandler.SearchFiles)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":            cfg.Server.Port,
		"address":         listenAddr,
		"storage_backend": cfg.Storage.Backend,
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
