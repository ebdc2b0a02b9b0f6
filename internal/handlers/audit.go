package handlers

import (
	"github.com/fileharbor/backend/internal/models"
	"github.com/fileharbor/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuditHandler struct {
	DB *gorm.DB
}

func NewAuditHandler(db *gorm.DB) *AuditHandler {
	return &AuditHandler{DB: db}
}

// List returns the audit trail newest-first, optionally filtered by action
// or user. Admin only.
func (h *AuditHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.AuditLog{})

	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if userParam := c.Query("userID"); userParam != "" {
		userID, err := parseUUID(userParam)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid userID filter")
		}
		query = query.Where("user_id = ?", userID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting audit logs")
	}

	var logs []models.AuditLog
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&logs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing audit logs")
	}

	return utils.Paginated(c, logs, p.Page, p.Limit, total)
}
