package models

import (
	"time"

	"github.com/google/uuid"
)

type LinkType string

const (
	// LinkTypeRegular links own their folders and files directly.
	LinkTypeRegular LinkType = "regular"
	// LinkTypeGenerated links expose an existing workspace subtree, referenced
	// by SourceFolderID, instead of owning folders themselves.
	LinkTypeGenerated LinkType = "generated"
)

type Link struct {
	BaseModel
	Name           string     `json:"name" gorm:"type:varchar(255);not null"`
	Slug           string     `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	OwnerID        uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index"`
	WorkspaceID    uuid.UUID  `json:"workspaceID" gorm:"type:uuid;not null;index"`
	LinkType       LinkType   `json:"linkType" gorm:"type:varchar(20);not null;default:'regular'"`
	SourceFolderID *uuid.UUID `json:"sourceFolderID,omitempty" gorm:"type:uuid"`
	IsActive       bool       `json:"isActive" gorm:"not null;default:true"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`

	Owner     User      `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Workspace Workspace `json:"workspace,omitempty" gorm:"foreignKey:WorkspaceID;references:ID"`
	Batches   []Batch   `json:"-" gorm:"foreignKey:LinkID"`
}

func (Link) TableName() string {
	return "links"
}

// Accessible reports whether the link accepts uploads right now.
func (l *Link) Accessible() bool {
	if !l.IsActive {
		return false
	}
	if l.ExpiresAt != nil && l.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}
