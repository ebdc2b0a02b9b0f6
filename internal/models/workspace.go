package models

import "github.com/google/uuid"

type Workspace struct {
	BaseModel
	Name    string    `json:"name" gorm:"type:varchar(255);not null"`
	OwnerID uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`

	Owner   User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Folders []Folder `json:"-" gorm:"foreignKey:WorkspaceID"`
	Files   []File   `json:"-" gorm:"foreignKey:WorkspaceID"`
}
