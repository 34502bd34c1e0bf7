package utils

// OneDrive API
const (
	OneDriveAPIBase = "https://api.onedrive.com/v1.0"
	ExpandChildren  = "children"
)

// Transfer defaults
const (
	DefaultConcurrency          = 4
	DefaultDiscoveryConcurrency = 1
	MaxConcurrency              = 64
	DefaultRequestTimeoutSecs   = 300
	DownloadBufferSize          = 256 * 1024
	PartFileSuffix              = ".odshare-part"
)

// Output layout
const (
	DefaultOutputDirName = "downloads"
	ShareIDMarker        = "!"
	ShareIDReplacement   = "-"
)

// Schema version
const SchemaVersion = "1.0"
