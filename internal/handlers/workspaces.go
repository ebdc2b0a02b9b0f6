package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/fileharbor/backend/internal/middleware"
	"github.com/fileharbor/backend/internal/models"
	"github.com/fileharbor/backend/internal/services"
	"github.com/fileharbor/backend/internal/storage"
	"github.com/fileharbor/backend/pkg/logger"
	"github.com/fileharbor/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkspacesHandler struct {
	DB        *gorm.DB
	Storage   storage.ObjectStorage
	Access    *services.AccessService
	LinkFiles *services.LinkFilesService
	Copy      *services.CopyService
	Audit     *services.AuditService
}

func NewWorkspacesHandler(db *gorm.DB, storageClient storage.ObjectStorage, access *services.AccessService, linkFiles *services.LinkFilesService, copySvc *services.CopyService, audit *services.AuditService) *WorkspacesHandler {
	return &WorkspacesHandler{DB: db, Storage: storageClient, Access: access, LinkFiles: linkFiles, Copy: copySvc, Audit: audit}
}

func (h *WorkspacesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var workspaces []models.Workspace
	if err := h.DB.Where("owner_id = ?", currentUser.ID).Order("created_at ASC").Find(&workspaces).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing workspaces")
	}

	return utils.Success(c, fiber.StatusOK, workspaces)
}

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

func (h *WorkspacesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createWorkspaceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	workspace := models.Workspace{
		Name:    name,
		OwnerID: currentUser.ID,
	}
	if err := h.DB.Create(&workspace).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating workspace")
	}

	return utils.Success(c, fiber.StatusCreated, workspace)
}

// Tree returns the workspace rendered as a file tree.
func (h *WorkspacesHandler) Tree(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	workspaceID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid workspace id")
	}
	if !h.Access.OwnsWorkspace(c.Context(), currentUser.ID, workspaceID) {
		return utils.Error(c, fiber.StatusNotFound, "workspace not found")
	}

	var folders []models.Folder
	if err := h.DB.Where("workspace_id = ?", workspaceID).Find(&folders).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading folders")
	}

	var files []models.File
	if err := h.DB.Where("workspace_id = ?", workspaceID).Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading files")
	}

	tree := services.BuildFileTree(folders, files, nil)

	fileCount := 0
	var totalSize int64
	for _, node := range tree {
		services.CalculateNodeStats(node, func(count int, size int64) {
			fileCount += count
			totalSize += size
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"tree":      tree,
		"fileCount": fileCount,
		"totalSize": totalSize,
	})
}

type createWorkspaceFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentID"`
}

func (h *WorkspacesHandler) CreateFolder(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	workspaceID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid workspace id")
	}
	if !h.Access.OwnsWorkspace(c.Context(), currentUser.ID, workspaceID) {
		return utils.Error(c, fiber.StatusNotFound, "workspace not found")
	}

	var req createWorkspaceFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	folder := models.Folder{
		Name:        name,
		Path:        "/" + name,
		WorkspaceID: &workspaceID,
	}

	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) != "" {
		parentID, parseErr := parseUUID(*req.ParentID)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid parentID")
		}
		var parent models.Folder
		if err := h.DB.First(&parent, "id = ? AND workspace_id = ?", parentID, workspaceID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.Error(c, fiber.StatusNotFound, "parent folder not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading parent folder")
		}
		folder.ParentID = &parent.ID
		folder.Path = strings.TrimSuffix(parent.Path, "/") + "/" + name
	}

	if err := h.DB.Create(&folder).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating folder")
	}

	return utils.Success(c, fiber.StatusCreated, folder)
}

type copyFromLinkRequest struct {
	LinkID         string   `json:"linkID"`
	NodeIDs        []string `json:"nodeIDs"`
	TargetFolderID *string  `json:"targetFolderID"`
}

// CopyFromLink copies the selected nodes of a link's tree into the workspace.
// Selection is by node id against the freshly built tree, so stale ids from
// an outdated dashboard view surface as NOT_FOUND entries instead of copying
// the wrong thing.
func (h *WorkspacesHandler) CopyFromLink(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	workspaceID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid workspace id")
	}
	if !h.Access.OwnsWorkspace(c.Context(), currentUser.ID, workspaceID) {
		return utils.Error(c, fiber.StatusNotFound, "workspace not found")
	}

	var req copyFromLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.NodeIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "nodeIDs is required")
	}

	linkID, err := parseUUID(req.LinkID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid linkID")
	}

	var link models.Link
	if err := h.DB.First(&link, "id = ? AND owner_id = ?", linkID, currentUser.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "link not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading link")
	}
	if link.LinkType == models.LinkTypeGenerated {
		return utils.Error(c, fiber.StatusBadRequest, "generated links expose workspace files and cannot be a copy source")
	}

	var targetFolderID *uuid.UUID
	if req.TargetFolderID != nil && strings.TrimSpace(*req.TargetFolderID) != "" {
		parsed, parseErr := parseUUID(*req.TargetFolderID)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid targetFolderID")
		}
		belongs, checkErr := h.Access.FolderBelongsToWorkspace(c.Context(), parsed, workspaceID)
		if checkErr != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed validating target folder")
		}
		if !belongs {
			return utils.Error(c, fiber.StatusBadRequest, "targetFolderID must be a folder in the workspace")
		}
		targetFolderID = &parsed
	}

	entry, err := h.LinkFiles.GetLinkTree(c.Context(), &link)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed building link tree")
	}

	selected, missing := selectTreeNodes(entry.Tree, req.NodeIDs)

	result, err := h.Copy.CopyTreeNodesToWorkspace(c.Context(), selected, targetFolderID, currentUser.ID, workspaceID, services.CopyOptions{})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "copy failed")
	}

	for _, id := range missing {
		result.Errors = append(result.Errors, services.CopyError{
			FileID: id,
			Code:   services.CopyErrNotFound,
			Reason: "node not found in link tree",
		})
	}
	result.Success = len(result.Errors) == 0

	logger.InfoWithUser(currentUser.ID.String(), "link_nodes_copied", map[string]interface{}{
		"link_id":        link.ID.String(),
		"workspace_id":   workspaceID.String(),
		"copied_folders": result.CopiedFolders,
		"copied_files":   result.CopiedFiles,
		"errors":         len(result.Errors),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "workspace.copy_from_link",
		ResourceType: "workspace",
		ResourceID:   &workspaceID,
		Details: map[string]interface{}{
			"link_id":        link.ID.String(),
			"copied_folders": result.CopiedFolders,
			"copied_files":   result.CopiedFiles,
			"total_size":     result.TotalSize,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, result)
}

type copyFilesRequest struct {
	FileIDs        []string `json:"fileIDs"`
	TargetFolderID *string  `json:"targetFolderID"`
}

// CopyFiles copies a flat list of files into the workspace, ignoring any
// folder structure they came from.
func (h *WorkspacesHandler) CopyFiles(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	workspaceID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid workspace id")
	}
	if !h.Access.OwnsWorkspace(c.Context(), currentUser.ID, workspaceID) {
		return utils.Error(c, fiber.StatusNotFound, "workspace not found")
	}

	var req copyFilesRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.FileIDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "fileIDs is required")
	}

	fileIDs := make([]uuid.UUID, 0, len(req.FileIDs))
	for _, raw := range req.FileIDs {
		id, parseErr := parseUUID(raw)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid file id: "+raw)
		}
		fileIDs = append(fileIDs, id)
	}

	var targetFolderID *uuid.UUID
	if req.TargetFolderID != nil && strings.TrimSpace(*req.TargetFolderID) != "" {
		parsed, parseErr := parseUUID(*req.TargetFolderID)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid targetFolderID")
		}
		belongs, checkErr := h.Access.FolderBelongsToWorkspace(c.Context(), parsed, workspaceID)
		if checkErr != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed validating target folder")
		}
		if !belongs {
			return utils.Error(c, fiber.StatusBadRequest, "targetFolderID must be a folder in the workspace")
		}
		targetFolderID = &parsed
	}

	result, err := h.Copy.CopyFilesToWorkspace(c.Context(), fileIDs, targetFolderID, currentUser.ID, workspaceID, services.CopyOptions{})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "copy failed")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "workspace.copy_files",
		ResourceType: "workspace",
		ResourceID:   &workspaceID,
		Details: map[string]interface{}{
			"copied_files": result.CopiedFiles,
			"total_size":   result.TotalSize,
			"errors":       len(result.Errors),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, result)
}

// Download streams a file the user can access, whether it sits in one of
// their workspaces or in a link they own.
func (h *WorkspacesHandler) Download(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	if !h.Access.CanAccessFile(c.Context(), currentUser.ID, fileID) {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	obj, err := h.Storage.Download(c.Context(), file.StoragePath)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed downloading file")
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading object metadata")
	}

	contentType := stat.ContentType
	if contentType == "" {
		contentType = file.MimeType
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.download",
		ResourceType: "file",
		ResourceID:   &file.ID,
		Details: map[string]interface{}{
			"file_name": file.FileName,
			"file_size": file.Size,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	return c.SendStream(obj, int(stat.Size))
}

// Presign hands out a short-lived direct download URL so large files can be
// fetched from object storage without streaming through the API process.
func (h *WorkspacesHandler) Presign(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	if !h.Access.CanAccessFile(c.Context(), currentUser.ID, fileID) {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	expiry := 15 * time.Minute
	disposition := fmt.Sprintf("attachment; filename=%q", file.FileName)
	url, err := h.Storage.PresignedGetURLWithResponse(c.Context(), file.StoragePath, expiry, file.MimeType, disposition)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download URL")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "file.presign",
		ResourceType: "file",
		ResourceID:   &file.ID,
		Details: map[string]interface{}{
			"file_name": file.FileName,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url":       url,
		"expiresAt": time.Now().Add(expiry),
	})
}

// selectTreeNodes finds the nodes matching the requested ids anywhere in the
// forest. A selected folder carries its whole subtree, so ids nested under an
// already-selected ancestor are absorbed rather than copied twice.
func selectTreeNodes(tree []*services.TreeNode, rawIDs []string) (selected []*services.TreeNode, missing []uuid.UUID) {
	wanted := make(map[uuid.UUID]bool, len(rawIDs))
	for _, raw := range rawIDs {
		if id, err := parseUUID(raw); err == nil {
			wanted[id] = true
		}
	}

	found := make(map[uuid.UUID]bool)
	var walk func(nodes []*services.TreeNode, underSelected bool)
	walk = func(nodes []*services.TreeNode, underSelected bool) {
		for _, node := range nodes {
			picked := false
			if wanted[node.ID] {
				found[node.ID] = true
				if !underSelected {
					selected = append(selected, node)
					picked = true
				}
			}
			walk(node.Children, underSelected || picked)
		}
	}
	walk(tree, false)

	for id := range wanted {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return selected, missing
}
