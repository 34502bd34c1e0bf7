package types

import "sort"

// NodeKind distinguishes the two variants of a tree node
type NodeKind int

const (
	NodeFolder NodeKind = iota
	NodeFile
)

func (k NodeKind) String() string {
	if k == NodeFile {
		return "file"
	}
	return "folder"
}

// Node is the offline model of one remote item. Folder nodes own their
// children keyed by remote ID; file nodes carry what a download needs.
type Node struct {
	Kind        NodeKind         `json:"kind"`
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Size        int64            `json:"size,omitempty"`
	DownloadURL string           `json:"-"`
	Hashes      Hashes           `json:"hashes,omitempty"`
	Children    map[string]*Node `json:"children,omitempty"`
}

// NewFolderNode returns an empty folder node
func NewFolderNode(id, name string) *Node {
	return &Node{
		Kind:     NodeFolder,
		ID:       id,
		Name:     name,
		Children: make(map[string]*Node),
	}
}

// NewNodeFromItem converts a remote item into a node. Folder nodes start
// with no children; discovery fills them in.
func NewNodeFromItem(item *DriveItem) *Node {
	if !item.IsFile() {
		return NewFolderNode(item.ID, item.Name)
	}
	return &Node{
		Kind:        NodeFile,
		ID:          item.ID,
		Name:        item.Name,
		Size:        item.Size,
		DownloadURL: item.DownloadURL,
		Hashes:      item.ContentHashes(),
	}
}

// IsFolder reports whether the node is a folder
func (n *Node) IsFolder() bool {
	return n.Kind == NodeFolder
}

// SortedChildren returns the children ordered by name, then ID
func (n *Node) SortedChildren() []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, child := range n.Children {
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Name != children[j].Name {
			return children[i].Name < children[j].Name
		}
		return children[i].ID < children[j].ID
	})
	return children
}

// CountFiles returns the number of file nodes reachable from n
func (n *Node) CountFiles() int {
	if n.Kind == NodeFile {
		return 1
	}
	total := 0
	stack := []*Node{n}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range current.Children {
			if child.Kind == NodeFile {
				total++
				continue
			}
			stack = append(stack, child)
		}
	}
	return total
}
