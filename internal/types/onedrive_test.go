package types

import (
	"encoding/json"
	"testing"
)

const sampleShareRoot = `{
  "id": "ROOT!1",
  "name": "Holiday",
  "size": 30,
  "folder": {"childCount": 2},
  "children@odata.count": 2,
  "children": [
    {"id": "ROOT!2", "name": "FolderA", "size": 20, "folder": {"childCount": 1}},
    {
      "@content.downloadUrl": "https://example.invalid/dl/2",
      "id": "ROOT!3",
      "name": "File1.txt",
      "size": 10,
      "file": {"mimeType": "text/plain", "hashes": {"sha1Hash": "ABC", "sha256Hash": "DEF", "quickXorHash": "Q"}}
    }
  ]
}`

func TestDriveItemDecode(t *testing.T) {
	var item DriveItem
	if err := json.Unmarshal([]byte(sampleShareRoot), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.Name != "Holiday" || item.ChildrenCount != 2 || len(item.Children) != 2 {
		t.Fatalf("unexpected root: %+v", item)
	}
	if item.IsFile() {
		t.Fatal("root should not be a file")
	}
	folder := item.Children[0]
	if folder.IsFile() {
		t.Fatal("FolderA should be a folder")
	}
	file := item.Children[1]
	if !file.IsFile() {
		t.Fatal("File1.txt should be a file")
	}
	if file.DownloadURL != "https://example.invalid/dl/2" {
		t.Fatalf("download url = %q", file.DownloadURL)
	}
	hashes := file.ContentHashes()
	if hashes.SHA1Hash != "ABC" || hashes.SHA256Hash != "DEF" || hashes.QuickXorHash != "Q" {
		t.Fatalf("unexpected hashes: %+v", hashes)
	}
}

func TestDriveItemIsFile(t *testing.T) {
	tests := []struct {
		name string
		item DriveItem
		want bool
	}{
		{"file facet and url", DriveItem{File: &FileFacet{}, DownloadURL: "u"}, true},
		{"file facet without url", DriveItem{File: &FileFacet{}}, false},
		{"url without file facet", DriveItem{DownloadURL: "u"}, false},
		{"folder facet", DriveItem{Folder: &FolderFacet{}}, false},
		{"no facets", DriveItem{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.IsFile(); got != tt.want {
				t.Fatalf("IsFile() = %v, want %v", got, tt.want)
			}
		})
	}
}
