package handlers

import (
	"net/mail"
	"net/url"
	"strings"

	"github.com/authgate/backend/internal/config"
	"github.com/authgate/backend/internal/middleware"
	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/internal/services"
	"github.com/authgate/backend/pkg/actiontoken"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB     *gorm.DB
	Mailer services.Notifier
	Ledger *services.TokenLedger

	cfg         *config.Config
	verifyCodec *actiontoken.Codec
	resetCodec  *actiontoken.Codec
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config, mailer services.Notifier, ledger *services.TokenLedger) *AuthHandler {
	return &AuthHandler{
		DB:          db,
		Mailer:      mailer,
		Ledger:      ledger,
		cfg:         cfg,
		verifyCodec: actiontoken.New(cfg.ActionToken.Secret, actiontoken.PurposeEmailVerification),
		resetCodec:  actiontoken.New(cfg.ActionToken.Secret, actiontoken.PurposePasswordReset),
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Username == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var existing models.User
	if err := h.DB.First(&existing, "username = ? OR email = ?", req.Username, req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "username or email already exists")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleUser,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})

	h.sendVerificationEmail(&user)

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"message": "user account created, verification email will be sent",
		"user":    user,
	})
}

func (h *AuthHandler) sendVerificationEmail(user *models.User) {
	token, err := h.verifyCodec.Issue(user.Email)
	if err != nil {
		logger.Error("verification_token_issue_failed", err, map[string]interface{}{
			"user_id": user.ID.String(),
		})
		return
	}

	link := h.cfg.Server.BaseURL + "/api/auth/verify-email?token=" + url.QueryEscape(token)
	h.Mailer.Notify(
		user.Email,
		"Account Verification",
		"Hi! Click this link to verify your email:\n\n"+link,
	)
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	email, err := h.verifyCodec.Redeem(token, h.cfg.ActionToken.VerificationMaxAge)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid or expired token")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	if err := h.Ledger.Consume(token, actiontoken.PurposeEmailVerification, h.cfg.ActionToken.VerificationMaxAge); err != nil {
		if err == services.ErrTokenConsumed {
			return utils.Error(c, fiber.StatusBadRequest, "invalid or expired token")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed recording token use")
	}

	if user.IsVerified {
		return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user is already verified"})
	}

	if err := h.DB.Model(&user).Update("is_verified", true).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed verifying user")
	}

	logger.Info("email_verified", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "email successfully verified"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "username = ?", req.Username).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"username": req.Username,
			"ip":       c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid username or password")
	}

	if !user.IsVerified {
		logger.Warn("login_failed_not_verified", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusForbidden, "user is not verified")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid username or password")
	}

	var twoFactor models.TwoFactorConfig
	if err := h.DB.First(&twoFactor, "user_id = ?", user.ID).Error; err == nil && twoFactor.Enabled {
		challengeToken, err := utils.GenerateChallengeToken(user.Username)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed generating challenge token")
		}

		logger.Info("login_two_factor_pending", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})

		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"twoFactorRequired": true,
			"challengeToken":    challengeToken,
		})
	}

	token, err := utils.GenerateSessionToken(user.Username)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.Info("user_login", map[string]interface{}{
		"user_id": user.ID.String(),
		"ip":      c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":     token,
		"tokenType": "bearer",
		"user":      user,
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	token, err := h.resetCodec.Issue(user.Email)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing reset token")
	}

	link := h.cfg.Server.BaseURL + "/api/auth/reset-password?token=" + url.QueryEscape(token)
	h.Mailer.Notify(
		user.Email,
		"Reset Password",
		"Click this link to reset your password:\n\n"+link,
	)

	logger.Info("password_reset_requested", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password reset link has been sent"})
}

type resetPasswordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token is required")
	}

	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email, err := h.resetCodec.Redeem(token, h.cfg.ActionToken.ResetMaxAge)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid or expired token")
	}

	if req.NewPassword != req.ConfirmPassword {
		return utils.Error(c, fiber.StatusBadRequest, "password mismatch")
	}
	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", email).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	}

	if err := h.Ledger.Consume(token, actiontoken.PurposePasswordReset, h.cfg.ActionToken.ResetMaxAge); err != nil {
		if err == services.ErrTokenConsumed {
			return utils.Error(c, fiber.StatusBadRequest, "invalid or expired token")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed recording token use")
	}

	passwordHash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	if err := h.DB.Model(&user).Update("password_hash", passwordHash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.Info("password_reset_completed", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password changed successfully"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	if !utils.CheckPassword(req.OldPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid password")
	}

	passwordHash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", passwordHash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.InfoWithUser(user.ID.String(), "password_changed", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password changed successfully"})
}
