package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/fileharbor/backend/internal/cloud"
	"github.com/fileharbor/backend/internal/middleware"
	"github.com/fileharbor/backend/internal/models"
	"github.com/fileharbor/backend/internal/services"
	"github.com/fileharbor/backend/pkg/logger"
	"github.com/fileharbor/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// providerTokenHeader lets a client pass a short-lived token directly instead
// of storing one on the account.
const providerTokenHeader = "X-Provider-Token"

// transferEntry pins a running transfer to the user who started it, so the
// progress endpoint can refuse other users' polls.
type transferEntry struct {
	manager *cloud.TransferManager
	ownerID uuid.UUID
}

type CloudHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService

	mu        sync.Mutex
	transfers map[string]*transferEntry
}

func NewCloudHandler(db *gorm.DB, audit *services.AuditService) *CloudHandler {
	return &CloudHandler{
		DB:        db,
		Audit:     audit,
		transfers: make(map[string]*transferEntry),
	}
}

func parseProvider(raw string) (cloud.ProviderType, error) {
	switch cloud.ProviderType(strings.TrimSpace(raw)) {
	case cloud.ProviderGoogleDrive:
		return cloud.ProviderGoogleDrive, nil
	case cloud.ProviderOneDrive:
		return cloud.ProviderOneDrive, nil
	default:
		return "", errors.New("unknown provider")
	}
}

func newProvider(providerType cloud.ProviderType, token string) cloud.Provider {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	if providerType == cloud.ProviderOneDrive {
		return cloud.NewOneDriveProvider(tokens)
	}
	return cloud.NewGoogleDriveProvider(tokens)
}

// resolveToken prefers the request header, falling back to the user's stored
// account token, decrypted.
func (h *CloudHandler) resolveToken(c *fiber.Ctx, userID uuid.UUID, providerType cloud.ProviderType) (string, error) {
	if token := strings.TrimSpace(c.Get(providerTokenHeader)); token != "" {
		return token, nil
	}

	var account models.CloudAccount
	err := h.DB.First(&account, "user_id = ? AND provider = ?", userID, string(providerType)).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", errors.New("no connected account for provider")
		}
		return "", err
	}

	return utils.DecryptOrPlaintext(account.AccessTokenEnc), nil
}

func cloudErrorStatus(err error) (int, string) {
	var cloudErr *cloud.Error
	if !errors.As(err, &cloudErr) {
		return fiber.StatusInternalServerError, err.Error()
	}
	switch cloudErr.Code {
	case cloud.ErrAuthFailed:
		return fiber.StatusUnauthorized, cloudErr.Message
	case cloud.ErrPermissionDenied:
		return fiber.StatusForbidden, cloudErr.Message
	case cloud.ErrQuotaExceeded:
		return fiber.StatusInsufficientStorage, cloudErr.Message
	case cloud.ErrNetwork:
		return fiber.StatusBadGateway, cloudErr.Message
	default:
		return fiber.StatusInternalServerError, cloudErr.Message
	}
}

type connectAccountRequest struct {
	AccessToken  string `json:"accessToken"`
	AccountEmail string `json:"accountEmail"`
}

// ConnectAccount stores (or replaces) the bearer token for one provider,
// encrypted at rest. Token acquisition and refresh happen in the client.
func (h *CloudHandler) ConnectAccount(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	providerType, err := parseProvider(c.Params("provider"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "unknown provider")
	}

	var req connectAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "accessToken is required")
	}

	encrypted, err := utils.EncryptAESGCM(strings.TrimSpace(req.AccessToken))
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed encrypting token")
	}

	var account models.CloudAccount
	err = h.DB.First(&account, "user_id = ? AND provider = ?", currentUser.ID, string(providerType)).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		account = models.CloudAccount{
			UserID:         currentUser.ID,
			Provider:       models.CloudProviderName(providerType),
			AccountEmail:   strings.TrimSpace(req.AccountEmail),
			AccessTokenEnc: encrypted,
		}
		if err := h.DB.Create(&account).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed storing account")
		}
	case err != nil:
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading account")
	default:
		updates := map[string]interface{}{
			"access_token_enc": encrypted,
		}
		if email := strings.TrimSpace(req.AccountEmail); email != "" {
			updates["account_email"] = email
		}
		if err := h.DB.Model(&account).Updates(updates).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed updating account")
		}
	}

	logger.InfoWithUser(currentUser.ID.String(), "cloud_account_connected", map[string]interface{}{
		"provider": string(providerType),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "cloud.connect",
		ResourceType: "cloud_account",
		ResourceID:   &account.ID,
		Details: map[string]interface{}{
			"provider": string(providerType),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, account)
}

func (h *CloudHandler) ListAccounts(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var accounts []models.CloudAccount
	if err := h.DB.Where("user_id = ?", currentUser.ID).Order("provider ASC").Find(&accounts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing accounts")
	}

	return utils.Success(c, fiber.StatusOK, accounts)
}

func (h *CloudHandler) DisconnectAccount(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	providerType, err := parseProvider(c.Params("provider"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "unknown provider")
	}

	result := h.DB.Where("user_id = ? AND provider = ?", currentUser.ID, string(providerType)).Delete(&models.CloudAccount{})
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed disconnecting account")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "account not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account disconnected"})
}

func (h *CloudHandler) ListFiles(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	providerType, err := parseProvider(c.Params("provider"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "unknown provider")
	}

	token, err := h.resolveToken(c, currentUser.ID, providerType)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, err.Error())
	}

	provider := newProvider(providerType, token)
	files, err := provider.GetFiles(c.Context(), strings.TrimSpace(c.Query("folderID")))
	if err != nil {
		status, message := cloudErrorStatus(err)
		return utils.Error(c, status, message)
	}

	return utils.Success(c, fiber.StatusOK, files)
}

func (h *CloudHandler) SearchFiles(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	providerType, err := parseProvider(c.Params("provider"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "unknown provider")
	}

	query := strings.TrimSpace(c.Query("q"))
	if len(query) < 2 {
		return utils.Error(c, fiber.StatusBadRequest, "search query must be at least 2 characters")
	}

	token, err := h.resolveToken(c, currentUser.ID, providerType)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, err.Error())
	}

	provider := newProvider(providerType, token)
	files, err := provider.SearchFiles(c.Context(), query)
	if err != nil {
		status, message := cloudErrorStatus(err)
		return utils.Error(c, status, message)
	}

	return utils.Success(c, fiber.StatusOK, files)
}

type startTransferRequest struct {
	SourceProvider string   `json:"sourceProvider"`
	TargetProvider string   `json:"targetProvider"`
	FileIDs        []string `json:"fileIDs"`
	TargetFolderID string   `json:"targetFolderID"`
}

// StartTransfer kicks off a background provider-to-provider transfer and
// returns its id immediately; the client polls GetTransfer for progress.
func (h *CloudHandler) StartTransfer(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req startTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.FileIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "fileIDs is required")
	}

	sourceType, err := parseProvider(req.SourceProvider)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "unknown source provider")
	}
	targetType, err := parseProvider(req.TargetProvider)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "unknown target provider")
	}
	if sourceType == targetType {
		return utils.Error(c, fiber.StatusBadRequest, "source and target provider must differ")
	}

	sourceToken, err := h.resolveToken(c, currentUser.ID, sourceType)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "source: "+err.Error())
	}
	targetToken, err := h.resolveToken(c, currentUser.ID, targetType)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "target: "+err.Error())
	}

	manager := cloud.NewTransferManager(newProvider(sourceType, sourceToken), newProvider(targetType, targetToken))
	progress := manager.Progress()

	h.mu.Lock()
	h.transfers[progress.ID] = &transferEntry{manager: manager, ownerID: currentUser.ID}
	h.mu.Unlock()

	userID := currentUser.ID
	requestID := getRequestID(c)
	ip := c.IP()
	fileIDs := req.FileIDs
	targetFolderID := strings.TrimSpace(req.TargetFolderID)

	go func() {
		err := manager.Transfer(context.Background(), fileIDs, targetFolderID)
		final := manager.Progress()

		details := map[string]interface{}{
			"transfer_id":     final.ID,
			"source":          string(sourceType),
			"target":          string(targetType),
			"total_files":     final.TotalFiles,
			"completed_files": final.CompletedFiles,
			"status":          string(final.Status),
		}
		if err != nil {
			logger.ErrorWithUser(userID.String(), "cloud_transfer_failed", err, details)
		} else {
			logger.InfoWithUser(userID.String(), "cloud_transfer_completed", details)
		}

		h.Audit.LogAsync(services.AuditEntry{
			UserID:       &userID,
			Action:       "cloud.transfer",
			ResourceType: "cloud_transfer",
			Details:      details,
			IPAddress:    ip,
			RequestID:    requestID,
		})
	}()

	return utils.Success(c, fiber.StatusAccepted, progress)
}

func (h *CloudHandler) GetTransfer(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	transferID := strings.TrimSpace(c.Params("id"))

	h.mu.Lock()
	entry, ok := h.transfers[transferID]
	h.mu.Unlock()
	if !ok || entry.ownerID != currentUser.ID {
		return utils.Error(c, fiber.StatusNotFound, "transfer not found")
	}

	return utils.Success(c, fiber.StatusOK, entry.manager.Progress())
}
