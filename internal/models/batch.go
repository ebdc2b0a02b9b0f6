package models

import "github.com/google/uuid"

// Batch groups the files uploaded during one visit to a link, together with
// the uploader-supplied contact details.
type Batch struct {
	BaseModel
	LinkID        uuid.UUID `json:"linkID" gorm:"type:uuid;not null;index"`
	UploaderName  string    `json:"uploaderName" gorm:"type:varchar(255);not null"`
	UploaderEmail string    `json:"uploaderEmail" gorm:"type:varchar(255)"`

	Link  Link   `json:"link,omitempty" gorm:"foreignKey:LinkID;references:ID"`
	Files []File `json:"-" gorm:"foreignKey:BatchID"`
}

func (Batch) TableName() string {
	return "batches"
}
