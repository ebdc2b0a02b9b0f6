package services

import (
	"context"

	"github.com/fileharbor/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LinkWithFileTree is the read-only aggregate the dashboard renders: one link
// plus its assembled tree and subtree totals.
type LinkWithFileTree struct {
	Link      models.Link `json:"link"`
	Tree      []*TreeNode `json:"tree"`
	FileCount int         `json:"fileCount"`
	TotalSize int64       `json:"totalSize"`
}

type LinkFilesService struct {
	DB *gorm.DB
}

func NewLinkFilesService(db *gorm.DB) *LinkFilesService {
	return &LinkFilesService{DB: db}
}

// GetLinksWithFiles returns every link the user owns with its built file tree.
func (s *LinkFilesService) GetLinksWithFiles(ctx context.Context, userID uuid.UUID) ([]LinkWithFileTree, error) {
	var links []models.Link
	if err := s.DB.WithContext(ctx).Where("owner_id = ?", userID).Order("created_at DESC").Find(&links).Error; err != nil {
		return nil, err
	}

	result := make([]LinkWithFileTree, 0, len(links))
	for i := range links {
		entry, err := s.buildLinkTree(ctx, &links[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, nil
}

// GetLinkTree builds the tree for a single link.
func (s *LinkFilesService) GetLinkTree(ctx context.Context, link *models.Link) (*LinkWithFileTree, error) {
	return s.buildLinkTree(ctx, link)
}

func (s *LinkFilesService) buildLinkTree(ctx context.Context, link *models.Link) (*LinkWithFileTree, error) {
	var (
		folders []models.Folder
		files   []models.File
		exclude *uuid.UUID
	)

	if link.LinkType == models.LinkTypeGenerated && link.SourceFolderID != nil {
		// A generated link exposes a workspace subtree. Only the descendants
		// of the source folder are loaded; building with the source folder as
		// the exclusion boundary promotes its direct children to roots.
		var workspaceFolders []models.Folder
		if err := s.DB.WithContext(ctx).Where("workspace_id = ?", link.WorkspaceID).Find(&workspaceFolders).Error; err != nil {
			return nil, err
		}
		folders = collectDescendantFolders(workspaceFolders, *link.SourceFolderID)

		folderIDs := make([]uuid.UUID, 0, len(folders)+1)
		folderIDs = append(folderIDs, *link.SourceFolderID)
		for _, f := range folders {
			folderIDs = append(folderIDs, f.ID)
		}
		if err := s.DB.WithContext(ctx).Where("workspace_id = ? AND folder_id IN ?", link.WorkspaceID, folderIDs).Find(&files).Error; err != nil {
			return nil, err
		}
		exclude = link.SourceFolderID
	} else {
		if err := s.DB.WithContext(ctx).Where("link_id = ?", link.ID).Find(&folders).Error; err != nil {
			return nil, err
		}
		if err := s.DB.WithContext(ctx).Where("link_id = ?", link.ID).Find(&files).Error; err != nil {
			return nil, err
		}
	}

	tree := BuildFileTree(folders, files, exclude)

	entry := &LinkWithFileTree{Link: *link, Tree: tree}
	for _, root := range tree {
		CalculateNodeStats(root, func(count int, size int64) {
			entry.FileCount += count
			entry.TotalSize += size
		})
	}
	return entry, nil
}

// collectDescendantFolders filters all to the folders below rootID, walking
// the parent references breadth-first in memory.
func collectDescendantFolders(all []models.Folder, rootID uuid.UUID) []models.Folder {
	children := make(map[uuid.UUID][]models.Folder)
	for _, f := range all {
		if f.ParentID == nil {
			continue
		}
		children[*f.ParentID] = append(children[*f.ParentID], f)
	}

	var result []models.Folder
	queue := []uuid.UUID{rootID}
	visited := map[uuid.UUID]bool{rootID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			result = append(result, child)
			queue = append(queue, child.ID)
		}
	}
	return result
}
