package handlers

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
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

type LinksHandler struct {
	DB        *gorm.DB
	Storage   storage.ObjectStorage
	Access    *services.AccessService
	LinkFiles *services.LinkFilesService
	Quota     *services.QuotaService
	Audit     *services.AuditService
}

func NewLinksHandler(db *gorm.DB, storageClient storage.ObjectStorage, access *services.AccessService, linkFiles *services.LinkFilesService, quota *services.QuotaService, audit *services.AuditService) *LinksHandler {
	return &LinksHandler{DB: db, Storage: storageClient, Access: access, LinkFiles: linkFiles, Quota: quota, Audit: audit}
}

type createLinkRequest struct {
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	WorkspaceID    string     `json:"workspaceID"`
	SourceFolderID *string    `json:"sourceFolderID"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// Create makes a regular link, or a generated link when sourceFolderID is
// given. A generated link exposes an existing workspace subtree instead of
// collecting uploads into its own folders.
func (h *LinksHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	workspaceID, err := parseUUID(req.WorkspaceID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid workspaceID")
	}
	if !h.Access.OwnsWorkspace(c.Context(), currentUser.ID, workspaceID) {
		return utils.Error(c, fiber.StatusForbidden, "workspace not found or not owned")
	}

	link := models.Link{
		Name:        name,
		Slug:        strings.TrimSpace(req.Slug),
		OwnerID:     currentUser.ID,
		WorkspaceID: workspaceID,
		LinkType:    models.LinkTypeRegular,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
	}
	if link.Slug == "" {
		link.Slug = generateSlug(name)
	}

	if req.SourceFolderID != nil && strings.TrimSpace(*req.SourceFolderID) != "" {
		sourceFolderID, parseErr := parseUUID(*req.SourceFolderID)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid sourceFolderID")
		}
		belongs, checkErr := h.Access.FolderBelongsToWorkspace(c.Context(), sourceFolderID, workspaceID)
		if checkErr != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed validating source folder")
		}
		if !belongs {
			return utils.Error(c, fiber.StatusBadRequest, "sourceFolderID must be a folder in the workspace")
		}
		link.LinkType = models.LinkTypeGenerated
		link.SourceFolderID = &sourceFolderID
	}

	if err := h.DB.Create(&link).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "failed creating link; slug may already be taken")
	}

	logger.InfoWithUser(currentUser.ID.String(), "link_created", map[string]interface{}{
		"link_id":   link.ID.String(),
		"slug":      link.Slug,
		"link_type": link.LinkType,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "link.create",
		ResourceType: "link",
		ResourceID:   &link.ID,
		Details: map[string]interface{}{
			"slug":      link.Slug,
			"link_type": string(link.LinkType),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, link)
}

func (h *LinksHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c)
	query := h.DB.Model(&models.Link{}).Where("owner_id = ?", currentUser.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting links")
	}

	var links []models.Link
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&links).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing links")
	}

	return utils.Paginated(c, links, p.Page, p.Limit, total)
}

// ListWithFiles returns every link the user owns together with its assembled
// file tree and subtree totals. This is the dashboard's main read.
func (h *LinksHandler) ListWithFiles(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	result, err := h.LinkFiles.GetLinksWithFiles(c.Context(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading links")
	}

	return utils.Success(c, fiber.StatusOK, result)
}

func (h *LinksHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	linkID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid link id")
	}

	var link models.Link
	if err := h.DB.First(&link, "id = ? AND owner_id = ?", linkID, currentUser.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "link not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading link")
	}

	entry, err := h.LinkFiles.GetLinkTree(c.Context(), &link)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed building link tree")
	}

	return utils.Success(c, fiber.StatusOK, entry)
}

type updateLinkRequest struct {
	Name      *string    `json:"name"`
	IsActive  *bool      `json:"isActive"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *LinksHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	linkID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid link id")
	}

	if !h.Access.OwnsLink(c.Context(), currentUser.ID, linkID) {
		return utils.Error(c, fiber.StatusNotFound, "link not found")
	}

	var req updateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.ExpiresAt != nil {
		updates["expires_at"] = *req.ExpiresAt
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Link{}).Where("id = ?", linkID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating link")
	}

	var link models.Link
	if err := h.DB.First(&link, "id = ?", linkID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated link")
	}

	return utils.Success(c, fiber.StatusOK, link)
}

func (h *LinksHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	linkID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid link id")
	}

	var link models.Link
	if err := h.DB.First(&link, "id = ? AND owner_id = ?", linkID, currentUser.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "link not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading link")
	}

	// Deleting a generated link leaves the workspace subtree alone; deleting
	// a regular link soft-deletes its inbox content with it.
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if link.LinkType == models.LinkTypeRegular {
			if err := tx.Where("link_id = ?", link.ID).Delete(&models.File{}).Error; err != nil {
				return err
			}
			if err := tx.Where("link_id = ?", link.ID).Delete(&models.Folder{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("link_id = ?", link.ID).Delete(&models.Batch{}).Error; err != nil {
			return err
		}
		return tx.Delete(&link).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting link")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &currentUser.ID,
		Action:       "link.delete",
		ResourceType: "link",
		ResourceID:   &link.ID,
		Details: map[string]interface{}{
			"slug": link.Slug,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "link deleted"})
}

// loadAccessibleLink resolves a public slug, rejecting inactive and expired
// links with 404 so a visitor cannot distinguish revoked from nonexistent.
func (h *LinksHandler) loadAccessibleLink(c *fiber.Ctx) (*models.Link, error) {
	slug := strings.TrimSpace(c.Params("slug"))
	if slug == "" {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invalid slug")
	}

	var link models.Link
	if err := h.DB.First(&link, "slug = ?", slug).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.Error(c, fiber.StatusNotFound, "link not found")
		}
		return nil, utils.Error(c, fiber.StatusInternalServerError, "failed loading link")
	}
	if !link.Accessible() {
		return nil, utils.Error(c, fiber.StatusNotFound, "link not found")
	}
	return &link, nil
}

func (h *LinksHandler) PublicGet(c *fiber.Ctx) error {
	link, err := h.loadAccessibleLink(c)
	if link == nil {
		return err
	}

	entry, buildErr := h.LinkFiles.GetLinkTree(c.Context(), link)
	if buildErr != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed building link tree")
	}

	// Visiting your own link (with a session) unlocks management UI client-side.
	isOwner := false
	if currentUser := middleware.GetCurrentUser(c); currentUser != nil {
		isOwner = currentUser.ID == link.OwnerID
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"name":      link.Name,
		"slug":      link.Slug,
		"linkType":  link.LinkType,
		"isOwner":   isOwner,
		"tree":      entry.Tree,
		"fileCount": entry.FileCount,
		"totalSize": entry.TotalSize,
	})
}

type createBatchRequest struct {
	UploaderName  string `json:"uploaderName"`
	UploaderEmail string `json:"uploaderEmail"`
}

func (h *LinksHandler) PublicCreateBatch(c *fiber.Ctx) error {
	link, err := h.loadAccessibleLink(c)
	if link == nil {
		return err
	}

	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.UploaderName)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "uploaderName is required")
	}

	batch := models.Batch{
		LinkID:        link.ID,
		UploaderName:  name,
		UploaderEmail: strings.TrimSpace(req.UploaderEmail),
	}
	if err := h.DB.Create(&batch).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating batch")
	}

	return utils.Success(c, fiber.StatusCreated, batch)
}

type createLinkFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentID"`
}

func (h *LinksHandler) PublicCreateFolder(c *fiber.Ctx) error {
	link, err := h.loadAccessibleLink(c)
	if link == nil {
		return err
	}
	if link.LinkType == models.LinkTypeGenerated {
		return utils.Error(c, fiber.StatusBadRequest, "generated links do not accept uploads")
	}

	var req createLinkFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	folder := models.Folder{
		Name:   name,
		Path:   "/" + name,
		LinkID: &link.ID,
	}

	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) != "" {
		parentID, parseErr := parseUUID(*req.ParentID)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid parentID")
		}

		var parent models.Folder
		if err := h.DB.First(&parent, "id = ? AND link_id = ?", parentID, link.ID).Error; err != nil {
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

// PublicUpload receives one file from an anonymous visitor into a link's
// inbox. The upload counts against the link owner's quota.
func (h *LinksHandler) PublicUpload(c *fiber.Ctx) error {
	link, err := h.loadAccessibleLink(c)
	if link == nil {
		return err
	}
	if link.LinkType == models.LinkTypeGenerated {
		return utils.Error(c, fiber.StatusBadRequest, "generated links do not accept uploads")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	batchID, err := parseUUID(c.FormValue("batchID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "batchID is required")
	}
	var batch models.Batch
	if err := h.DB.First(&batch, "id = ? AND link_id = ?", batchID, link.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "batch not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading batch")
	}

	var folderID *uuid.UUID
	folderIDRaw := strings.TrimSpace(c.FormValue("folderID"))
	if folderIDRaw != "" {
		parsed, parseErr := parseUUID(folderIDRaw)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid folderID")
		}
		var folder models.Folder
		if err := h.DB.First(&folder, "id = ? AND link_id = ?", parsed, link.ID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return utils.Error(c, fiber.StatusNotFound, "folder not found")
			}
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading folder")
		}
		folderID = &folder.ID
	}

	check, err := h.Quota.CheckUserQuota(h.DB.WithContext(c.Context()), link.OwnerID, fileHeader.Size)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking quota")
	}
	if !check.Allowed {
		return utils.Error(c, fiber.StatusInsufficientStorage, check.Message)
	}

	filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	if filename == "" || filename == "." {
		return utils.Error(c, fiber.StatusBadRequest, "invalid filename")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	objectName := fmt.Sprintf("links/%s/%s/%s", link.ID.String(), uuid.New().String(), filename)
	if err := h.Storage.Upload(c.Context(), objectName, stream, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading file")
	}

	entry := models.File{
		FileName:     filename,
		OriginalName: fileHeader.Filename,
		MimeType:     contentType,
		Size:         fileHeader.Size,
		FolderID:     folderID,
		LinkID:       &link.ID,
		BatchID:      &batch.ID,
		ScanStatus:   models.FileScanPending,
		StoragePath:  objectName,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return h.Quota.AddStorageUsage(tx, link.OwnerID, fileHeader.Size)
	})
	if err != nil {
		_ = h.Storage.Delete(c.Context(), objectName)
		if errors.Is(err, services.ErrQuotaExceeded) {
			return utils.Error(c, fiber.StatusInsufficientStorage, services.ErrQuotaExceeded.Error())
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating file record")
	}

	logger.Info("link_file_uploaded", map[string]interface{}{
		"link_id":   link.ID.String(),
		"file_id":   entry.ID.String(),
		"file_name": filename,
		"file_size": fileHeader.Size,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &link.OwnerID,
		Action:       "link.upload",
		ResourceType: "file",
		ResourceID:   &entry.ID,
		Details: map[string]interface{}{
			"link_slug": link.Slug,
			"file_name": filename,
			"file_size": fileHeader.Size,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, entry)
}

func generateSlug(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, base)
	base = strings.Trim(base, "-")
	if len(base) > 40 {
		base = base[:40]
	}
	suffix := strings.Split(uuid.New().String(), "-")[0]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
