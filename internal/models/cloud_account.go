package models

import "github.com/google/uuid"

type CloudProviderName string

const (
	CloudProviderGoogleDrive CloudProviderName = "google-drive"
	CloudProviderOneDrive    CloudProviderName = "onedrive"
)

// CloudAccount holds an externally-acquired bearer token for one cloud
// provider, encrypted at rest. Token refresh happens outside this system; the
// UI replaces the stored token when it obtains a new one.
type CloudAccount struct {
	BaseModel
	UserID         uuid.UUID         `json:"userID" gorm:"type:uuid;not null;index:idx_cloud_accounts_user_provider,unique"`
	Provider       CloudProviderName `json:"provider" gorm:"type:varchar(20);not null;index:idx_cloud_accounts_user_provider,unique"`
	AccountEmail   string            `json:"accountEmail" gorm:"type:varchar(255)"`
	AccessTokenEnc string            `json:"-" gorm:"type:text;not null"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

func (CloudAccount) TableName() string {
	return "cloud_accounts"
}
