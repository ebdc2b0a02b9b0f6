package models

import "github.com/google/uuid"

type FileScanStatus string

const (
	FileScanPending  FileScanStatus = "pending"
	FileScanClean    FileScanStatus = "clean"
	FileScanInfected FileScanStatus = "infected"
)

// File is a single uploaded object. Exactly one of LinkID and WorkspaceID is
// set: a file lives either in a link's inbox or in a workspace. A copy into a
// workspace clears LinkID and records provenance via CopiedFromFileID.
type File struct {
	BaseModel
	FileName         string         `json:"fileName" gorm:"type:varchar(255);not null"`
	OriginalName     string         `json:"originalName" gorm:"type:varchar(255);not null"`
	MimeType         string         `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size             int64          `json:"size" gorm:"not null;default:0"`
	FolderID         *uuid.UUID     `json:"folderID,omitempty" gorm:"type:uuid;index"`
	LinkID           *uuid.UUID     `json:"linkID,omitempty" gorm:"type:uuid;index"`
	WorkspaceID      *uuid.UUID     `json:"workspaceID,omitempty" gorm:"type:uuid;index"`
	BatchID          *uuid.UUID     `json:"batchID,omitempty" gorm:"type:uuid;index"`
	CopiedFromFileID *uuid.UUID     `json:"copiedFromFileID,omitempty" gorm:"type:uuid"`
	ScanStatus       FileScanStatus `json:"scanStatus" gorm:"type:varchar(20);not null;default:'pending'"`
	StoragePath      string         `json:"storagePath" gorm:"type:text;not null"`

	Folder    *Folder    `json:"folder,omitempty" gorm:"foreignKey:FolderID"`
	Link      *Link      `json:"link,omitempty" gorm:"foreignKey:LinkID"`
	Workspace *Workspace `json:"workspace,omitempty" gorm:"foreignKey:WorkspaceID"`
	Batch     *Batch     `json:"batch,omitempty" gorm:"foreignKey:BatchID"`
}
