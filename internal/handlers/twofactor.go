package handlers

import (
	"time"

	"github.com/authgate/backend/internal/middleware"
	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TwoFactorHandler struct {
	DB *gorm.DB
}

func NewTwoFactorHandler(db *gorm.DB) *TwoFactorHandler {
	return &TwoFactorHandler{DB: db}
}

func (h *TwoFactorHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var cfg models.TwoFactorConfig
	hasConfig := h.DB.First(&cfg, "user_id = ?", user.ID).Error == nil

	var confirmedAt *time.Time
	if hasConfig {
		confirmedAt = cfg.ConfirmedAt
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"enabled":     hasConfig && cfg.Enabled,
		"pending":     hasConfig && !cfg.Enabled && cfg.Secret != "",
		"confirmedAt": confirmedAt,
	})
}

// Setup starts or resumes TOTP enrollment. While a secret is pending the
// same secret is returned on every call; once enabled, setup is a conflict.
func (h *TwoFactorHandler) Setup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var cfg models.TwoFactorConfig
	err := h.DB.First(&cfg, "user_id = ?", user.ID).Error
	hasConfig := err == nil
	if err != nil && err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading two-factor config")
	}

	if hasConfig && cfg.Enabled {
		return utils.Error(c, fiber.StatusConflict, "two-factor authentication is already enabled")
	}

	var secret string
	if hasConfig && cfg.Secret != "" {
		secret = utils.DecryptOrPlaintext(cfg.Secret)
	} else {
		var err error
		secret, _, err = utils.GenerateTOTPSecret(user.Username)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to generate secret")
		}

		encryptedSecret, err := utils.EncryptSecret(secret)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to encrypt secret")
		}

		if hasConfig {
			if err := h.DB.Model(&cfg).Update("secret", encryptedSecret).Error; err != nil {
				return utils.Error(c, fiber.StatusInternalServerError, "failed to update two-factor config")
			}
		} else {
			cfg = models.TwoFactorConfig{
				UserID: user.ID,
				Secret: encryptedSecret,
			}
			if err := h.DB.Create(&cfg).Error; err != nil {
				return utils.Error(c, fiber.StatusInternalServerError, "failed to save two-factor config")
			}
		}

		logger.InfoWithUser(user.ID.String(), "two_factor_setup_started", nil)
	}

	qrCode, err := utils.TOTPQRCodeDataURI(user.Username, secret)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to render QR code")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret": secret,
		"uri":    utils.TOTPProvisioningURI(user.Username, secret),
		"qrCode": qrCode,
	})
}

type confirmTwoFactorRequest struct {
	Code string `json:"code"`
}

// Confirm proves possession of the enrolled secret. Only here does Enabled
// flip to true.
func (h *TwoFactorHandler) Confirm(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req confirmTwoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	var cfg models.TwoFactorConfig
	if err := h.DB.First(&cfg, "user_id = ?", user.ID).Error; err != nil || cfg.Secret == "" {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor setup not started")
	}

	if cfg.Enabled {
		return utils.Error(c, fiber.StatusConflict, "two-factor authentication is already enabled")
	}

	secret := utils.DecryptOrPlaintext(cfg.Secret)
	if !utils.VerifyTOTPCode(req.Code, secret) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid two-factor code")
	}

	now := time.Now()
	if err := h.DB.Model(&cfg).Updates(map[string]interface{}{
		"enabled":      true,
		"confirmed_at": now,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed enabling two-factor authentication")
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_enabled", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "two-factor authentication enabled"})
}

type disableTwoFactorRequest struct {
	Password string `json:"password"`
}

func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableTwoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}

	var cfg models.TwoFactorConfig
	if err := h.DB.First(&cfg, "user_id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor authentication is not configured")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid password")
	}

	if err := h.DB.Model(&cfg).Updates(map[string]interface{}{
		"enabled":      false,
		"secret":       "",
		"confirmed_at": nil,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed disabling two-factor authentication")
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_disabled", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "two-factor authentication disabled"})
}

type verifyLoginRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

// VerifyLogin exchanges a password-proved challenge token plus a TOTP code
// for a session token. The challenge jti is consumed so the token cannot be
// replayed.
func (h *TwoFactorHandler) VerifyLogin(c *fiber.Ctx) error {
	var req verifyLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.ChallengeToken == "" || req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "challengeToken and code are required")
	}

	claims, err := utils.ValidateChallengeToken(req.ChallengeToken)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired challenge token")
	}

	if !utils.IsJTIValid(claims.ID) {
		return utils.Error(c, fiber.StatusUnauthorized, "challenge token already used")
	}

	var user models.User
	if err := h.DB.First(&user, "username = ?", claims.Username).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired challenge token")
	}

	var cfg models.TwoFactorConfig
	if err := h.DB.First(&cfg, "user_id = ?", user.ID).Error; err != nil || !cfg.Enabled {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor authentication is not enabled")
	}

	secret := utils.DecryptOrPlaintext(cfg.Secret)
	if !utils.VerifyTOTPCode(req.Code, secret) {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid two-factor code")
	}

	utils.ConsumeJTI(claims.ID)

	token, err := utils.GenerateSessionToken(user.Username)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_login", map[string]interface{}{
		"ip": c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":     token,
		"tokenType": "bearer",
		"user":      user,
	})
}
