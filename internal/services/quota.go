package services

import (
	"errors"
	"fmt"

	"github.com/fileharbor/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrQuotaExceeded is returned by AddStorageUsage when the increment would
// push the user past their storage limit.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

type QuotaCheck struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

type QuotaService struct {
	DB *gorm.DB
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{DB: db}
}

// CheckUserQuota reports whether adding additionalBytes would stay within the
// user's storage limit. A limit of zero means unlimited. Callers pass the
// handle the surrounding work runs on, so a check issued inside a transaction
// reads through that transaction's connection instead of grabbing a second
// one from the pool. The check is advisory; AddStorageUsage is the gate.
func (s *QuotaService) CheckUserQuota(tx *gorm.DB, userID uuid.UUID, additionalBytes int64) (QuotaCheck, error) {
	var user models.User
	if err := tx.Select("id", "storage_used", "storage_limit").First(&user, "id = ?", userID).Error; err != nil {
		return QuotaCheck{}, err
	}

	if user.StorageLimit > 0 && user.StorageUsed+additionalBytes > user.StorageLimit {
		return QuotaCheck{
			Allowed: false,
			Message: fmt.Sprintf("storage limit exceeded: %d of %d bytes used, %d requested",
				user.StorageUsed, user.StorageLimit, additionalBytes),
		}, nil
	}

	return QuotaCheck{Allowed: true}, nil
}

// AddStorageUsage increments the user's storage counter by bytes. Callers pass
// their transaction handle so the update commits or rolls back with the writes
// it accounts for. The limit is enforced in the UPDATE's guard rather than in
// a separate read, so concurrent writers serialize on the user row's lock and
// cannot jointly overshoot; an increment that no longer fits returns
// ErrQuotaExceeded.
func (s *QuotaService) AddStorageUsage(tx *gorm.DB, userID uuid.UUID, bytes int64) error {
	if bytes == 0 {
		return nil
	}
	res := tx.Model(&models.User{}).
		Where("id = ? AND (storage_limit = 0 OR storage_used + ? <= storage_limit)", userID, bytes).
		UpdateColumn("storage_used", gorm.Expr("storage_used + ?", bytes))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}
