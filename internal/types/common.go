package types

// OutputFormat selects how command results are written to stdout
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags holds the persistent flags shared by every command
type GlobalFlags struct {
	Config       string
	OutputFormat OutputFormat
	JSON         bool
	Quiet        bool
	Verbose      bool
	Debug        bool
	LogFile      string
	DryRun       bool
}

// CLIOutput is the JSON envelope written for every command
type CLIOutput struct {
	SchemaVersion string       `json:"schemaVersion"`
	TraceID       string       `json:"traceId"`
	Command       string       `json:"command"`
	Data          interface{}  `json:"data"`
	Warnings      []CLIWarning `json:"warnings"`
	Errors        []CLIError   `json:"errors"`
}

// CLIWarning is a non-fatal message attached to command output
type CLIWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// CLIError is a structured, stable error shape
type CLIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// RequestType tags outgoing API requests for logging
type RequestType string

const (
	RequestTypeShareRoot    RequestType = "ShareRoot"
	RequestTypeNodeChildren RequestType = "NodeChildren"
	RequestTypeContent      RequestType = "Content"
)

// RequestContext carries identifiers for one API request
type RequestContext struct {
	ShareID     string      `json:"shareId"`
	NodeID      string      `json:"nodeId,omitempty"`
	RequestType RequestType `json:"requestType"`
	TraceID     string      `json:"traceId"`
}

// TableRenderer is implemented by results that print as a table
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	EmptyMessage() string
}
