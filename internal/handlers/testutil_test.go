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

	"github.com/authgate/backend/internal/config"
	"github.com/authgate/backend/internal/middleware"
	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/internal/services"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type recordedMail struct {
	Recipient string
	Subject   string
	Body      string
}

// recordingNotifier captures outbound mail instead of sending it.
type recordingNotifier struct {
	mu    sync.Mutex
	mails []recordedMail
}

func (n *recordingNotifier) Notify(recipient, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mails = append(n.mails, recordedMail{Recipient: recipient, Subject: subject, Body: body})
}

func (n *recordingNotifier) sent() []recordedMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recordedMail(nil), n.mails...)
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	mailer *recordingNotifier
	cfg    *config.Config
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		if err := utils.ConfigureSessionTokens("test-secret", "HS256", 30*time.Minute); err != nil {
			panic(err)
		}
		utils.ConfigureEncryption("test-secret")
		utils.ConfigureTOTP("AuthGate Test")
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

	err = db.AutoMigrate(
		&models.User{},
		&models.TwoFactorConfig{},
		&models.ConsumedToken{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:    "8080",
			BaseURL: "http://localhost:8080",
		},
		Session: config.SessionConfig{
			Secret:    "test-secret",
			Algorithm: "HS256",
			TTL:       30 * time.Minute,
		},
		ActionToken: config.ActionTokenConfig{
			Secret:             "test-action-secret",
			VerificationMaxAge: 24 * time.Hour,
			ResetMaxAge:        15 * time.Minute,
		},
		TOTP: config.TOTPConfig{Issuer: "AuthGate Test"},
	}

	mailer := &recordingNotifier{}
	ledger := services.NewTokenLedger(db)

	authHandler := NewAuthHandler(db, cfg, mailer, ledger)
	twoFactorHandler := NewTwoFactorHandler(db)
	usersHandler := NewUsersHandler(db)
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

	return &testEnv{app: app, db: db, mailer: mailer, cfg: cfg}
}

func createTestUser(t *testing.T, db *gorm.DB, username, email, password string, role models.UserRole, verified bool) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsVerified:   verified,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateSessionToken(user.Username)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

// extractTokenFromMail pulls the action token out of a mailed link.
func extractTokenFromMail(t *testing.T, body string) string {
	t.Helper()

	idx := bytes.LastIndex([]byte(body), []byte("token="))
	if idx == -1 {
		t.Fatalf("no token found in mail body %q", body)
	}
	return body[idx+len("token="):]
}
