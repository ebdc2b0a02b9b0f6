package services

import (
	"sort"
	"strings"

	"github.com/fileharbor/backend/internal/models"
	"github.com/google/uuid"
)

type NodeType string

const (
	NodeTypeFolder NodeType = "folder"
	NodeTypeFile   NodeType = "file"
)

// TreeNode is the ephemeral in-memory shape both link inboxes and workspaces
// are rendered from. Built fresh on every read, never persisted.
type TreeNode struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	Type     NodeType    `json:"type"`
	ParentID *uuid.UUID  `json:"parentID,omitempty"`
	Path     string      `json:"path"`
	Size     int64       `json:"size,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// BuildFileTree assembles a forest from flat folder and file records scoped to
// one owning context. Folders are mapped before files so a file can derive its
// path from its parent's. A node whose parent is missing from the input, or
// equals excludeParentID, is promoted to root — nothing is ever dropped. The
// exclusion boundary is how a generated link shows a workspace subtree without
// loading the ancestor chain.
func BuildFileTree(folders []models.Folder, files []models.File, excludeParentID *uuid.UUID) []*TreeNode {
	nodes := make(map[uuid.UUID]*TreeNode, len(folders)+len(files))
	order := make([]*TreeNode, 0, len(folders)+len(files))

	for i := range folders {
		f := &folders[i]
		node := &TreeNode{
			ID:       f.ID,
			Name:     f.Name,
			Type:     NodeTypeFolder,
			ParentID: f.ParentID,
			Path:     f.Path,
		}
		nodes[f.ID] = node
		order = append(order, node)
	}

	for i := range files {
		f := &files[i]
		path := "/"
		if f.FolderID != nil {
			if parent, ok := nodes[*f.FolderID]; ok {
				path = parent.Path
			}
		}
		node := &TreeNode{
			ID:       f.ID,
			Name:     f.OriginalName,
			Type:     NodeTypeFile,
			ParentID: f.FolderID,
			Path:     path,
			Size:     f.Size,
			MimeType: f.MimeType,
		}
		nodes[f.ID] = node
		order = append(order, node)
	}

	roots := make([]*TreeNode, 0)
	for _, node := range order {
		if node.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if excludeParentID != nil && *node.ParentID == *excludeParentID {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*node.ParentID]
		if !ok || parent.Type != NodeTypeFolder {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortTreeNodes(roots)
	return roots
}

// sortTreeNodes orders siblings folders-first, then lexicographically by name,
// recursing into every folder. Applied once after assembly.
func sortTreeNodes(nodes []*TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type == NodeTypeFolder
		}
		return strings.Compare(nodes[i].Name, nodes[j].Name) < 0
	})
	for _, node := range nodes {
		if len(node.Children) > 0 {
			sortTreeNodes(node.Children)
		}
	}
}

// CalculateNodeStats walks node depth-first and invokes visit once per file
// encountered. Accumulation policy (per-branch vs. total) stays with the
// caller.
func CalculateNodeStats(node *TreeNode, visit func(fileCount int, fileSize int64)) {
	if node == nil {
		return
	}
	if node.Type == NodeTypeFile {
		visit(1, node.Size)
		return
	}
	for _, child := range node.Children {
		CalculateNodeStats(child, visit)
	}
}
