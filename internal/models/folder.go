package models

import "github.com/google/uuid"

// Folder is a directory node. LinkID and WorkspaceID are mutually exclusive:
// a folder belongs to a link's inbox or to a workspace, never both. A folder's
// parent, when set, belongs to the same owning context.
type Folder struct {
	BaseModel
	Name        string     `json:"name" gorm:"type:varchar(255);not null"`
	ParentID    *uuid.UUID `json:"parentID,omitempty" gorm:"type:uuid;index"`
	Path        string     `json:"path" gorm:"type:text;not null;default:'/'"`
	SortOrder   int        `json:"sortOrder" gorm:"not null;default:0"`
	LinkID      *uuid.UUID `json:"linkID,omitempty" gorm:"type:uuid;index"`
	WorkspaceID *uuid.UUID `json:"workspaceID,omitempty" gorm:"type:uuid;index"`

	Parent   *Folder  `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
	Children []Folder `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	Files    []File   `json:"-" gorm:"foreignKey:FolderID"`
}

func (Folder) TableName() string {
	return "folders"
}
