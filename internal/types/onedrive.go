package types

// DriveItem is a OneDrive item as returned by the shares API with
// $expand=children. Children are only populated one level deep.
type DriveItem struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	WebURL               string           `json:"webUrl,omitempty"`
	DownloadURL          string           `json:"@content.downloadUrl,omitempty"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime,omitempty"`
	ParentReference      *ParentReference `json:"parentReference,omitempty"`
	File                 *FileFacet       `json:"file,omitempty"`
	Folder               *FolderFacet     `json:"folder,omitempty"`
	ChildrenCount        int              `json:"children@odata.count,omitempty"`
	ChildrenNextLink     string           `json:"children@odata.nextLink,omitempty"`
	Children             []DriveItem      `json:"children,omitempty"`
}

// ParentReference locates an item inside its drive
type ParentReference struct {
	DriveID   string `json:"driveId,omitempty"`
	DriveType string `json:"driveType,omitempty"`
	ID        string `json:"id,omitempty"`
	Path      string `json:"path,omitempty"`
	ShareID   string `json:"shareId,omitempty"`
}

// FileFacet is present on file items
type FileFacet struct {
	MimeType string  `json:"mimeType,omitempty"`
	Hashes   *Hashes `json:"hashes,omitempty"`
}

// FolderFacet is present on folder items
type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

// Hashes holds the content hashes OneDrive reports for a file
type Hashes struct {
	QuickXorHash string `json:"quickXorHash,omitempty"`
	SHA1Hash     string `json:"sha1Hash,omitempty"`
	SHA256Hash   string `json:"sha256Hash,omitempty"`
}

// IsFile reports whether the item is a downloadable file. Anything else,
// including a file facet without a download URL, is treated as a folder.
func (i *DriveItem) IsFile() bool {
	return i.File != nil && i.DownloadURL != ""
}

// ContentHashes returns the file hashes, or an empty value for folders
func (i *DriveItem) ContentHashes() Hashes {
	if i.File == nil || i.File.Hashes == nil {
		return Hashes{}
	}
	return *i.File.Hashes
}
