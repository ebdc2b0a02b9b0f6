package services

import (
	"sync"
	"testing"

	"github.com/fileharbor/backend/internal/database"
	"github.com/fileharbor/backend/internal/models"
	"github.com/fileharbor/backend/pkg/logger"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating schema: %v", err)
	}

	return db
}

func createUser(t *testing.T, db *gorm.DB, email string, storageLimit int64) *models.User {
	t.Helper()

	user := &models.User{
		Email:        email,
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "User",
		Role:         models.UserRoleUser,
		StorageLimit: storageLimit,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	return user
}

func createWorkspace(t *testing.T, db *gorm.DB, owner *models.User, name string) *models.Workspace {
	t.Helper()

	workspace := &models.Workspace{Name: name, OwnerID: owner.ID}
	if err := db.Create(workspace).Error; err != nil {
		t.Fatalf("failed creating workspace: %v", err)
	}
	return workspace
}

func createLink(t *testing.T, db *gorm.DB, owner *models.User, workspace *models.Workspace, slug string) *models.Link {
	t.Helper()

	link := &models.Link{
		Name:        "Link " + slug,
		Slug:        slug,
		OwnerID:     owner.ID,
		WorkspaceID: workspace.ID,
		LinkType:    models.LinkTypeRegular,
		IsActive:    true,
	}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("failed creating link: %v", err)
	}
	return link
}

func createLinkFolder(t *testing.T, db *gorm.DB, link *models.Link, name string, parent *models.Folder) *models.Folder {
	t.Helper()

	folder := &models.Folder{
		Name:   name,
		Path:   "/" + name,
		LinkID: &link.ID,
	}
	if parent != nil {
		folder.ParentID = &parent.ID
		folder.Path = parent.Path + "/" + name
	}
	if err := db.Create(folder).Error; err != nil {
		t.Fatalf("failed creating folder: %v", err)
	}
	return folder
}

func createLinkFile(t *testing.T, db *gorm.DB, link *models.Link, folder *models.Folder, name string, size int64) *models.File {
	t.Helper()

	file := &models.File{
		FileName:     name,
		OriginalName: name,
		MimeType:     "application/octet-stream",
		Size:         size,
		LinkID:       &link.ID,
		ScanStatus:   models.FileScanClean,
		StoragePath:  "links/" + name,
	}
	if folder != nil {
		file.FolderID = &folder.ID
	}
	if err := db.Create(file).Error; err != nil {
		t.Fatalf("failed creating file: %v", err)
	}
	return file
}
