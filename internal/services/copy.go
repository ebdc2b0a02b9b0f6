package services

import (
	"context"
	"errors"

	"github.com/fileharbor/backend/internal/models"
	"github.com/fileharbor/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CopyErrorCode string

const (
	CopyErrNotFound         CopyErrorCode = "NOT_FOUND"
	CopyErrUnauthorized     CopyErrorCode = "UNAUTHORIZED"
	CopyErrValidationFailed CopyErrorCode = "VALIDATION_FAILED"
	CopyErrQuotaExceeded    CopyErrorCode = "QUOTA_EXCEEDED"
	CopyErrDatabase         CopyErrorCode = "DATABASE_ERROR"
)

// CopyError records one skipped item of a batch copy. Item-level failures
// never abort the surrounding transaction.
type CopyError struct {
	FileID uuid.UUID     `json:"fileID"`
	Name   string        `json:"name"`
	Code   CopyErrorCode `json:"code"`
	Reason string        `json:"reason"`
}

type CopyResult struct {
	Success       bool        `json:"success"`
	CopiedFolders int         `json:"copiedFolders"`
	CopiedFiles   int         `json:"copiedFiles"`
	Errors        []CopyError `json:"errors"`
	TotalSize     int64       `json:"totalSize"`
}

type CopyOptions struct {
	// RequireCleanScan skips files whose virus scan has not come back clean.
	RequireCleanScan bool
}

// CopyService duplicates nodes collected through a link into a user's private
// workspace. One stateless instance is constructed in main and injected into
// the handlers that need it.
type CopyService struct {
	DB    *gorm.DB
	Quota *QuotaService
}

func NewCopyService(db *gorm.DB, quota *QuotaService) *CopyService {
	return &CopyService{DB: db, Quota: quota}
}

// CopyTreeNodesToWorkspace recreates the selected nodes (and their subtrees)
// under targetFolderID in the destination workspace, inside one transaction.
// Folders are processed before files because file placement depends on the new
// folder ids; the source→new id map is filled parent-before-child so hierarchy
// is reconstructed without any ordering guarantee on the input list. A quota
// violation rolls the whole transaction back; per-file ownership or validation
// failures are recorded in the result and skipped.
func (s *CopyService) CopyTreeNodesToWorkspace(ctx context.Context, nodes []*TreeNode, targetFolderID *uuid.UUID, userID, workspaceID uuid.UUID, opts CopyOptions) (*CopyResult, error) {
	result := &CopyResult{Errors: []CopyError{}}

	var requestedBytes int64
	for _, node := range nodes {
		CalculateNodeStats(node, func(_ int, size int64) {
			requestedBytes += size
		})
	}

	var quotaMessage string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		check, err := s.Quota.CheckUserQuota(tx, userID, requestedBytes)
		if err != nil {
			return err
		}
		if !check.Allowed {
			quotaMessage = check.Message
			return ErrQuotaExceeded
		}

		basePath, err := resolveFolderPath(tx, targetFolderID)
		if err != nil {
			return err
		}

		folderIDMap := make(map[uuid.UUID]uuid.UUID)
		newPaths := map[uuid.UUID]string{}

		for _, node := range nodes {
			if node.Type != NodeTypeFolder {
				continue
			}
			if err := s.copyFolderSubtree(tx, node, targetFolderID, basePath, workspaceID, folderIDMap, newPaths, result); err != nil {
				return err
			}
		}

		for _, node := range nodes {
			if err := s.copyFilesInSubtree(tx, node, targetFolderID, userID, workspaceID, folderIDMap, opts, result); err != nil {
				return err
			}
		}

		return s.Quota.AddStorageUsage(tx, userID, result.TotalSize)
	})

	if errors.Is(err, ErrQuotaExceeded) {
		logger.WarnWithUser(userID.String(), "copy_quota_exceeded", map[string]interface{}{
			"workspace_id":    workspaceID.String(),
			"requested_bytes": requestedBytes,
		})
		if quotaMessage == "" {
			quotaMessage = ErrQuotaExceeded.Error()
		}
		return &CopyResult{
			Errors: []CopyError{{Code: CopyErrQuotaExceeded, Reason: quotaMessage}},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}

// CopyFilesToWorkspace is the flat sibling of CopyTreeNodesToWorkspace: the
// caller has already flattened a selection and no folder hierarchy is rebuilt.
func (s *CopyService) CopyFilesToWorkspace(ctx context.Context, fileIDs []uuid.UUID, targetFolderID *uuid.UUID, userID, workspaceID uuid.UUID, opts CopyOptions) (*CopyResult, error) {
	result := &CopyResult{Errors: []CopyError{}}

	var sources []models.File
	if err := s.DB.WithContext(ctx).Where("id IN ?", fileIDs).Find(&sources).Error; err != nil {
		return nil, err
	}

	var requestedBytes int64
	for _, f := range sources {
		requestedBytes += f.Size
	}

	var quotaMessage string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		check, err := s.Quota.CheckUserQuota(tx, userID, requestedBytes)
		if err != nil {
			return err
		}
		if !check.Allowed {
			quotaMessage = check.Message
			return ErrQuotaExceeded
		}

		found := make(map[uuid.UUID]bool, len(sources))
		for _, f := range sources {
			found[f.ID] = true
		}
		for _, id := range fileIDs {
			if !found[id] {
				result.Errors = append(result.Errors, CopyError{
					FileID: id,
					Code:   CopyErrNotFound,
					Reason: "source file no longer exists",
				})
			}
		}

		for i := range sources {
			if err := s.insertFileCopy(tx, &sources[i], targetFolderID, userID, workspaceID, opts, result); err != nil {
				return err
			}
		}

		return s.Quota.AddStorageUsage(tx, userID, result.TotalSize)
	})

	if errors.Is(err, ErrQuotaExceeded) {
		if quotaMessage == "" {
			quotaMessage = ErrQuotaExceeded.Error()
		}
		return &CopyResult{
			Errors: []CopyError{{Code: CopyErrQuotaExceeded, Reason: quotaMessage}},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}

// copyFolderSubtree creates a workspace copy of node and of every folder below
// it, depth-first. The source→new mapping is recorded before descending so
// children can always resolve their parent's new id.
func (s *CopyService) copyFolderSubtree(tx *gorm.DB, node *TreeNode, targetFolderID *uuid.UUID, basePath string, workspaceID uuid.UUID, folderIDMap map[uuid.UUID]uuid.UUID, newPaths map[uuid.UUID]string, result *CopyResult) error {
	newID := uuid.New()

	parentID := targetFolderID
	parentPath := basePath
	if node.ParentID != nil {
		if mapped, ok := folderIDMap[*node.ParentID]; ok {
			parentID = &mapped
			parentPath = newPaths[mapped]
		}
	}

	path := parentPath + "/" + node.Name

	folder := models.Folder{
		BaseModel:   models.BaseModel{ID: newID},
		Name:        node.Name,
		ParentID:    parentID,
		Path:        path,
		WorkspaceID: &workspaceID,
	}
	if err := tx.Create(&folder).Error; err != nil {
		return err
	}

	folderIDMap[node.ID] = newID
	newPaths[newID] = path
	result.CopiedFolders++

	for _, child := range node.Children {
		if child.Type != NodeTypeFolder {
			continue
		}
		if err := s.copyFolderSubtree(tx, child, targetFolderID, basePath, workspaceID, folderIDMap, newPaths, result); err != nil {
			return err
		}
	}
	return nil
}

func (s *CopyService) copyFilesInSubtree(tx *gorm.DB, node *TreeNode, targetFolderID *uuid.UUID, userID, workspaceID uuid.UUID, folderIDMap map[uuid.UUID]uuid.UUID, opts CopyOptions, result *CopyResult) error {
	if node.Type == NodeTypeFile {
		var source models.File
		if err := tx.First(&source, "id = ?", node.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result.Errors = append(result.Errors, CopyError{
					FileID: node.ID,
					Name:   node.Name,
					Code:   CopyErrNotFound,
					Reason: "source file no longer exists",
				})
				return nil
			}
			return err
		}

		destFolderID := targetFolderID
		if node.ParentID != nil {
			if mapped, ok := folderIDMap[*node.ParentID]; ok {
				destFolderID = &mapped
			}
		}

		return s.insertFileCopy(tx, &source, destFolderID, userID, workspaceID, opts, result)
	}

	for _, child := range node.Children {
		if err := s.copyFilesInSubtree(tx, child, targetFolderID, userID, workspaceID, folderIDMap, opts, result); err != nil {
			return err
		}
	}
	return nil
}

// insertFileCopy re-validates ownership of the source file against its owning
// link before inserting the workspace copy. The check is independent of any
// authorization the caller already performed.
func (s *CopyService) insertFileCopy(tx *gorm.DB, source *models.File, destFolderID *uuid.UUID, userID, workspaceID uuid.UUID, opts CopyOptions, result *CopyResult) error {
	if source.LinkID == nil {
		result.Errors = append(result.Errors, CopyError{
			FileID: source.ID,
			Name:   source.OriginalName,
			Code:   CopyErrUnauthorized,
			Reason: "file is not in a link inbox",
		})
		return nil
	}

	var link models.Link
	if err := tx.First(&link, "id = ? AND owner_id = ?", *source.LinkID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Errors = append(result.Errors, CopyError{
				FileID: source.ID,
				Name:   source.OriginalName,
				Code:   CopyErrUnauthorized,
				Reason: "file does not belong to a link owned by the requesting user",
			})
			return nil
		}
		return err
	}

	if opts.RequireCleanScan && source.ScanStatus != models.FileScanClean {
		result.Errors = append(result.Errors, CopyError{
			FileID: source.ID,
			Name:   source.OriginalName,
			Code:   CopyErrValidationFailed,
			Reason: "file has not passed virus scanning",
		})
		return nil
	}

	duplicate := models.File{
		BaseModel:        models.BaseModel{ID: uuid.New()},
		FileName:         source.FileName,
		OriginalName:     source.OriginalName,
		MimeType:         source.MimeType,
		Size:             source.Size,
		FolderID:         destFolderID,
		WorkspaceID:      &workspaceID,
		CopiedFromFileID: &source.ID,
		ScanStatus:       source.ScanStatus,
		StoragePath:      source.StoragePath,
	}
	if err := tx.Create(&duplicate).Error; err != nil {
		return err
	}

	result.CopiedFiles++
	result.TotalSize += source.Size
	return nil
}

func resolveFolderPath(tx *gorm.DB, folderID *uuid.UUID) (string, error) {
	if folderID == nil {
		return "", nil
	}
	var folder models.Folder
	if err := tx.Select("id", "path").First(&folder, "id = ?", *folderID).Error; err != nil {
		return "", err
	}
	return folder.Path, nil
}
