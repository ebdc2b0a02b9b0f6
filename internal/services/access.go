package services

import (
	"context"
	"errors"

	"github.com/fileharbor/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessService answers ownership questions for links, workspaces and the
// nodes inside them. FileHarbor has no cross-user sharing of workspaces, so
// access reduces to "does the requesting user own the enclosing context".
type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

func (a *AccessService) OwnsWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) bool {
	var workspace models.Workspace
	err := a.DB.WithContext(ctx).Select("id").First(&workspace, "id = ? AND owner_id = ?", workspaceID, userID).Error
	return err == nil
}

func (a *AccessService) OwnsLink(ctx context.Context, userID, linkID uuid.UUID) bool {
	var link models.Link
	err := a.DB.WithContext(ctx).Select("id").First(&link, "id = ? AND owner_id = ?", linkID, userID).Error
	return err == nil
}

// CanAccessFile walks the file up to its owning context and checks that
// context's owner. Files inside a link inbox belong to the link's owner;
// files inside a workspace to the workspace's owner.
func (a *AccessService) CanAccessFile(ctx context.Context, userID, fileID uuid.UUID) bool {
	var file models.File
	if err := a.DB.WithContext(ctx).Select("id", "link_id", "workspace_id").First(&file, "id = ?", fileID).Error; err != nil {
		return false
	}

	if file.WorkspaceID != nil {
		return a.OwnsWorkspace(ctx, userID, *file.WorkspaceID)
	}
	if file.LinkID != nil {
		return a.OwnsLink(ctx, userID, *file.LinkID)
	}
	return false
}

// FolderBelongsToWorkspace verifies a target folder sits in the given
// workspace before it is used as a copy destination.
func (a *AccessService) FolderBelongsToWorkspace(ctx context.Context, folderID, workspaceID uuid.UUID) (bool, error) {
	var folder models.Folder
	err := a.DB.WithContext(ctx).Select("id", "workspace_id").First(&folder, "id = ?", folderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return folder.WorkspaceID != nil && *folder.WorkspaceID == workspaceID, nil
}
