// Package plan turns a discovered share tree into download tasks.
package plan

import (
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/odshare/internal/mirror/exclude"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
)

// FileInfo is the part of a remote file a download needs
type FileInfo struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Size        int64        `json:"size"`
	DownloadURL string       `json:"-"`
	Hashes      types.Hashes `json:"hashes,omitempty"`
}

// DownloadTask pairs one remote file with the local directory it lands in
type DownloadTask struct {
	ShareID string   `json:"shareId"`
	File    FileInfo `json:"file"`
	// Dir is the absolute target directory; it may not exist yet
	Dir string `json:"dir"`
	// RelPath is the slash-separated path below the share directory
	RelPath string `json:"relPath"`
}

// Path is the final location of the downloaded file
func (t DownloadTask) Path() string {
	return filepath.Join(t.Dir, SafeName(t.File.Name))
}

// Flatten walks the children of root depth-first and returns one task per
// file. The root folder itself contributes no path segment. Siblings are
// visited in name order. Paths matched by matcher are left out, and an
// excluded folder drops its whole subtree.
func Flatten(shareID string, root *types.Node, baseDir string, matcher *exclude.Matcher) []DownloadTask {
	var tasks []DownloadTask
	if root == nil {
		return tasks
	}
	if !root.IsFolder() {
		return appendFile(tasks, shareID, root, baseDir, nil, matcher)
	}

	var segments []string
	var walk func(folder *types.Node, dir string)
	walk = func(folder *types.Node, dir string) {
		for _, child := range folder.SortedChildren() {
			if !child.IsFolder() {
				tasks = appendFile(tasks, shareID, child, dir, segments, matcher)
				continue
			}
			name := SafeName(child.Name)
			segments = append(segments, name)
			if !matcher.IsExcluded(strings.Join(segments, "/"), true) {
				walk(child, filepath.Join(dir, name))
			}
			segments = segments[:len(segments)-1]
		}
	}
	walk(root, baseDir)
	return tasks
}

func appendFile(tasks []DownloadTask, shareID string, node *types.Node, dir string, segments []string, matcher *exclude.Matcher) []DownloadTask {
	rel := SafeName(node.Name)
	if len(segments) > 0 {
		rel = strings.Join(segments, "/") + "/" + rel
	}
	if matcher.IsExcluded(rel, false) {
		return tasks
	}
	return append(tasks, DownloadTask{
		ShareID: shareID,
		File: FileInfo{
			ID:          node.ID,
			Name:        node.Name,
			Size:        node.Size,
			DownloadURL: node.DownloadURL,
			Hashes:      node.Hashes,
		},
		Dir:     dir,
		RelPath: rel,
	})
}

// SanitizeShareID makes a share identifier usable as a directory name
func SanitizeShareID(shareID string) string {
	return strings.NewReplacer(
		utils.ShareIDMarker, utils.ShareIDReplacement,
		"/", utils.ShareIDReplacement,
		`\`, utils.ShareIDReplacement,
	).Replace(shareID)
}

// ShareDir is the directory a share is mirrored into
func ShareDir(outputDir, shareID string) string {
	return filepath.Join(outputDir, SanitizeShareID(shareID))
}

// SafeName maps a remote item name to a single path segment
func SafeName(name string) string {
	switch name {
	case "", ".", "..":
		return "_"
	}
	return strings.NewReplacer("/", "_", `\`, "_", "\x00", "_").Replace(name)
}

// Summary is the size of a plan
type Summary struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
}

// Stats counts the files and bytes in tasks
func Stats(tasks []DownloadTask) Summary {
	s := Summary{Files: len(tasks)}
	for _, t := range tasks {
		s.Bytes += t.File.Size
	}
	return s
}
