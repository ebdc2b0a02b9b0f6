package services

import (
	"testing"

	"github.com/fileharbor/backend/internal/models"
	"github.com/google/uuid"
)

func folderFixture(name string, parentID *uuid.UUID, path string) models.Folder {
	f := models.Folder{Name: name, ParentID: parentID, Path: path}
	f.ID = uuid.New()
	return f
}

func fileFixture(name string, folderID *uuid.UUID, size int64) models.File {
	f := models.File{FileName: name, OriginalName: name, MimeType: "text/plain", Size: size, FolderID: folderID}
	f.ID = uuid.New()
	return f
}

func countNodes(nodes []*TreeNode) int {
	total := 0
	for _, node := range nodes {
		total += 1 + countNodes(node.Children)
	}
	return total
}

func TestBuildFileTree(t *testing.T) {
	t.Run("reconstructs hierarchy without losing nodes", func(t *testing.T) {
		root := folderFixture("Root", nil, "/Root")
		child := folderFixture("Child", &root.ID, "/Root/Child")
		grandchild := folderFixture("Grandchild", &child.ID, "/Root/Child/Grandchild")

		fileInRoot := fileFixture("a.txt", &root.ID, 10)
		fileInGrandchild := fileFixture("b.txt", &grandchild.ID, 20)
		looseFile := fileFixture("c.txt", nil, 30)

		tree := BuildFileTree(
			[]models.Folder{grandchild, root, child},
			[]models.File{fileInGrandchild, fileInRoot, looseFile},
			nil,
		)

		if got := countNodes(tree); got != 6 {
			t.Fatalf("expected 6 nodes in tree, got %d", got)
		}
		if len(tree) != 2 {
			t.Fatalf("expected 2 roots (Root folder and loose file), got %d", len(tree))
		}

		rootNode := tree[0]
		if rootNode.Name != "Root" || rootNode.Type != NodeTypeFolder {
			t.Fatalf("expected Root folder first, got %s (%s)", rootNode.Name, rootNode.Type)
		}
		if len(rootNode.Children) != 2 {
			t.Fatalf("expected Root to have 2 children, got %d", len(rootNode.Children))
		}
		// Folder before file among Root's children.
		if rootNode.Children[0].Name != "Child" {
			t.Fatalf("expected Child folder first under Root, got %s", rootNode.Children[0].Name)
		}
		if rootNode.Children[1].Name != "a.txt" {
			t.Fatalf("expected a.txt second under Root, got %s", rootNode.Children[1].Name)
		}

		grandchildNode := rootNode.Children[0].Children[0]
		if grandchildNode.Name != "Grandchild" || len(grandchildNode.Children) != 1 {
			t.Fatalf("grandchild subtree not rebuilt: %+v", grandchildNode)
		}
	})

	t.Run("sorts folders before files then by name", func(t *testing.T) {
		banana := folderFixture("Banana", nil, "/Banana")
		apple := folderFixture("Apple", nil, "/Apple")
		appleFile := fileFixture("Apple.txt", nil, 1)

		tree := BuildFileTree([]models.Folder{banana, apple}, []models.File{appleFile}, nil)

		want := []string{"Apple", "Banana", "Apple.txt"}
		if len(tree) != len(want) {
			t.Fatalf("expected %d roots, got %d", len(want), len(tree))
		}
		for i, name := range want {
			if tree[i].Name != name {
				t.Fatalf("position %d: expected %s, got %s", i, name, tree[i].Name)
			}
		}
	})

	t.Run("promotes orphans to root", func(t *testing.T) {
		missingParent := uuid.New()
		orphanFolder := folderFixture("Orphan", &missingParent, "/Orphan")
		orphanFile := fileFixture("orphan.txt", &missingParent, 5)

		tree := BuildFileTree([]models.Folder{orphanFolder}, []models.File{orphanFile}, nil)

		if len(tree) != 2 {
			t.Fatalf("expected both orphans promoted to root, got %d roots", len(tree))
		}
	})

	t.Run("file path derives from containing folder", func(t *testing.T) {
		docs := folderFixture("Docs", nil, "/Docs")
		inDocs := fileFixture("notes.txt", &docs.ID, 1)
		loose := fileFixture("loose.txt", nil, 1)

		tree := BuildFileTree([]models.Folder{docs}, []models.File{inDocs, loose}, nil)

		var docsNode, looseNode *TreeNode
		for _, node := range tree {
			switch node.Name {
			case "Docs":
				docsNode = node
			case "loose.txt":
				looseNode = node
			}
		}
		if docsNode == nil || len(docsNode.Children) != 1 {
			t.Fatalf("Docs folder missing or empty")
		}
		if docsNode.Children[0].Path != "/Docs" {
			t.Fatalf("expected file path /Docs, got %s", docsNode.Children[0].Path)
		}
		if looseNode == nil || looseNode.Path != "/" {
			t.Fatalf("expected loose file path /, got %+v", looseNode)
		}
	})

	t.Run("exclusion boundary promotes direct children", func(t *testing.T) {
		source := folderFixture("Source", nil, "/Source")
		inside := folderFixture("Inside", &source.ID, "/Source/Inside")
		insideFile := fileFixture("deep.txt", &inside.ID, 2)
		directFile := fileFixture("top.txt", &source.ID, 3)

		// The source folder itself is not in the input; its children become
		// the visible roots.
		tree := BuildFileTree([]models.Folder{inside}, []models.File{insideFile, directFile}, &source.ID)

		if len(tree) != 2 {
			t.Fatalf("expected 2 roots at the exclusion boundary, got %d", len(tree))
		}
		if tree[0].Name != "Inside" || tree[1].Name != "top.txt" {
			t.Fatalf("unexpected roots: %s, %s", tree[0].Name, tree[1].Name)
		}
		if len(tree[0].Children) != 1 || tree[0].Children[0].Name != "deep.txt" {
			t.Fatalf("Inside subtree not intact")
		}
	})
}

func TestCalculateNodeStats(t *testing.T) {
	root := folderFixture("Root", nil, "/Root")
	sub := folderFixture("Sub", &root.ID, "/Root/Sub")
	f1 := fileFixture("one.txt", &root.ID, 100)
	f2 := fileFixture("two.txt", &sub.ID, 250)

	tree := BuildFileTree([]models.Folder{root, sub}, []models.File{f1, f2}, nil)
	if len(tree) != 1 {
		t.Fatalf("expected a single root, got %d", len(tree))
	}

	var fileCount int
	var totalSize int64
	CalculateNodeStats(tree[0], func(count int, size int64) {
		fileCount += count
		totalSize += size
	})

	if fileCount != 2 {
		t.Fatalf("expected 2 files, got %d", fileCount)
	}
	if totalSize != 350 {
		t.Fatalf("expected total size 350, got %d", totalSize)
	}
}
