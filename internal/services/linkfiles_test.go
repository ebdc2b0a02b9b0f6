package services

import (
	"context"
	"testing"

	"github.com/fileharbor/backend/internal/models"
)

func TestGetLinksWithFiles(t *testing.T) {
	db := setupTestDB(t)
	user := createUser(t, db, "owner@example.com", 0)
	workspace := createWorkspace(t, db, user, "WS")

	link := createLink(t, db, user, workspace, "drop-zone")
	folder := createLinkFolder(t, db, link, "Scans", nil)
	createLinkFile(t, db, link, folder, "scan1.pdf", 100)
	createLinkFile(t, db, link, nil, "readme.txt", 25)

	other := createUser(t, db, "other@example.com", 0)
	otherWS := createWorkspace(t, db, other, "Other WS")
	otherLink := createLink(t, db, other, otherWS, "not-mine")
	createLinkFile(t, db, otherLink, nil, "secret.txt", 5)

	svc := NewLinkFilesService(db)
	result, err := svc.GetLinksWithFiles(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed loading links: %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("expected only the user's own link, got %d", len(result))
	}

	entry := result[0]
	if entry.Link.Slug != "drop-zone" {
		t.Fatalf("unexpected link: %s", entry.Link.Slug)
	}
	if entry.FileCount != 2 || entry.TotalSize != 125 {
		t.Fatalf("expected 2 files / 125 bytes, got %d / %d", entry.FileCount, entry.TotalSize)
	}
	if len(entry.Tree) != 2 {
		t.Fatalf("expected folder and loose file at root, got %d roots", len(entry.Tree))
	}
	if entry.Tree[0].Name != "Scans" || entry.Tree[0].Type != NodeTypeFolder {
		t.Fatalf("expected Scans folder first, got %+v", entry.Tree[0])
	}
}

func TestGeneratedLinkTree(t *testing.T) {
	db := setupTestDB(t)
	user := createUser(t, db, "owner@example.com", 0)
	workspace := createWorkspace(t, db, user, "WS")

	// Workspace layout: /Projects/Alpha with a file in each, plus an
	// unrelated /Private folder.
	projects := &models.Folder{Name: "Projects", Path: "/Projects", WorkspaceID: &workspace.ID}
	if err := db.Create(projects).Error; err != nil {
		t.Fatalf("failed creating folder: %v", err)
	}
	alpha := &models.Folder{Name: "Alpha", Path: "/Projects/Alpha", ParentID: &projects.ID, WorkspaceID: &workspace.ID}
	if err := db.Create(alpha).Error; err != nil {
		t.Fatalf("failed creating folder: %v", err)
	}
	private := &models.Folder{Name: "Private", Path: "/Private", WorkspaceID: &workspace.ID}
	if err := db.Create(private).Error; err != nil {
		t.Fatalf("failed creating folder: %v", err)
	}

	mkFile := func(name string, folder *models.Folder, size int64) {
		f := &models.File{
			FileName:     name,
			OriginalName: name,
			MimeType:     "text/plain",
			Size:         size,
			WorkspaceID:  &workspace.ID,
			ScanStatus:   models.FileScanClean,
			StoragePath:  "ws/" + name,
		}
		if folder != nil {
			f.FolderID = &folder.ID
		}
		if err := db.Create(f).Error; err != nil {
			t.Fatalf("failed creating file: %v", err)
		}
	}
	mkFile("plan.txt", projects, 10)
	mkFile("alpha.txt", alpha, 20)
	mkFile("diary.txt", private, 999)

	generated := &models.Link{
		Name:           "Projects share",
		Slug:           "projects-share",
		OwnerID:        user.ID,
		WorkspaceID:    workspace.ID,
		LinkType:       models.LinkTypeGenerated,
		SourceFolderID: &projects.ID,
		IsActive:       true,
	}
	if err := db.Create(generated).Error; err != nil {
		t.Fatalf("failed creating link: %v", err)
	}

	svc := NewLinkFilesService(db)
	entry, err := svc.GetLinkTree(context.Background(), generated)
	if err != nil {
		t.Fatalf("failed building tree: %v", err)
	}

	// Only the subtree under /Projects is visible, with its direct children
	// as roots.
	if entry.FileCount != 2 || entry.TotalSize != 30 {
		t.Fatalf("expected 2 files / 30 bytes in subtree, got %d / %d", entry.FileCount, entry.TotalSize)
	}
	if len(entry.Tree) != 2 {
		t.Fatalf("expected Alpha folder and plan.txt as roots, got %d", len(entry.Tree))
	}
	if entry.Tree[0].Name != "Alpha" {
		t.Fatalf("expected Alpha first, got %s", entry.Tree[0].Name)
	}
	if entry.Tree[1].Name != "plan.txt" {
		t.Fatalf("expected plan.txt second, got %s", entry.Tree[1].Name)
	}

	for _, root := range entry.Tree {
		var check func(node *TreeNode)
		check = func(node *TreeNode) {
			if node.Name == "diary.txt" || node.Name == "Private" {
				t.Fatalf("generated link leaked content outside its subtree")
			}
			for _, child := range node.Children {
				check(child)
			}
		}
		check(root)
	}
}
