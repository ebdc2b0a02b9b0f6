package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fileharbor/backend/internal/database"
	"github.com/fileharbor/backend/internal/middleware"
	"github.com/fileharbor/backend/internal/models"
	"github.com/fileharbor/backend/internal/services"
	"github.com/fileharbor/backend/pkg/logger"
	"github.com/fileharbor/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	cloud *CloudHandler
}

// setupTestEnv builds a full application over an in-memory database, with the
// same route table the server wires up. Object storage is left nil, so tests
// stay away from the raw upload/download endpoints.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureEncryption("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating schema: %v", err)
	}

	accessService := services.NewAccessService(db)
	quotaService := services.NewQuotaService(db)
	copyService := services.NewCopyService(db, quotaService)
	linkFilesService := services.NewLinkFilesService(db)
	auditService := services.NewAuditService(db, nil)

	authHandler := NewAuthHandler(db, auditService, 1024*1024)
	linksHandler := NewLinksHandler(db, nil, accessService, linkFilesService, quotaService, auditService)
	workspacesHandler := NewWorkspacesHandler(db, nil, accessService, linkFilesService, copyService, auditService)
	cloudHandler := NewCloudHandler(db, auditService)
	auditHandler := NewAuditHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New()
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

	cloudRoutes := api.Group("/cloud", authMiddleware.RequireAuth)
	cloudRoutes.Get("/accounts", cloudHandler.ListAccounts)
	cloudRoutes.Put("/accounts/:provider", cloudHandler.ConnectAccount)
	cloudRoutes.Delete("/accounts/:provider", cloudHandler.DisconnectAccount)
	cloudRoutes.Get("/transfers/:id", cloudHandler.GetTransfer)
	cloudRoutes.Post("/transfers", cloudHandler.StartTransfer)

	api.Get("/audit", authMiddleware.RequireAuth, middleware.AdminOnly, auditHandler.List)

	return &testEnv{app: app, db: db, cloud: cloudHandler}
}

func createTestUser(t *testing.T, env *testEnv, email string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword("password123")
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         models.UserRoleUser,
		StorageLimit: 1024 * 1024,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	workspace := &models.Workspace{Name: "My Workspace", OwnerID: user.ID}
	if err := env.db.Create(workspace).Error; err != nil {
		t.Fatalf("failed creating workspace: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}
	return user, token
}

func userWorkspace(t *testing.T, env *testEnv, user *models.User) *models.Workspace {
	t.Helper()

	var workspace models.Workspace
	if err := env.db.First(&workspace, "owner_id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed loading workspace: %v", err)
	}
	return &workspace
}

func performRequest(t *testing.T, env *testEnv, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func performJSONRequest(t *testing.T, env *testEnv, method, path, token string, payload interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed encoding request payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	return performRequest(t, env, method, path, token, body, fiber.MIMEApplicationJSON)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed decoding response body: %v", err)
	}
	return out
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func dataMap(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()

	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object in response, got %v", body)
	}
	return data
}
