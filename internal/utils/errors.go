package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/odshare/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Remote errors (20-29)
	ExitFileNotFound     = 20
	ExitPermissionDenied = 21
	ExitDiscoveryFailed  = 22
	// Transfer errors (30-39)
	ExitNetworkError   = 30
	ExitTimeout        = 31
	ExitRateLimited    = 32
	ExitDownloadFailed = 33
	ExitFilesystem     = 34
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	ExitInvalidConfig   = 41
	// Batch errors
	ExitBatchPartialFailure = 60
	ExitCancelled           = 70
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeFileNotFound        = "FILE_NOT_FOUND"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeDiscoveryFailed     = "DISCOVERY_FAILED"
	ErrCodeNetworkError        = "NETWORK_ERROR"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeDownloadFailed      = "DOWNLOAD_FAILED"
	ErrCodeSizeMismatch        = "SIZE_MISMATCH"
	ErrCodeHashMismatch        = "HASH_MISMATCH"
	ErrCodeFilesystem          = "FILESYSTEM_ERROR"
	ErrCodeInvalidArgument     = "INVALID_ARGUMENT"
	ErrCodeInvalidConfig       = "INVALID_CONFIG"
	ErrCodeBatchPartialFailure = "BATCH_PARTIAL_FAILURE"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeUnknown             = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeFileNotFound:        ExitFileNotFound,
		ErrCodePermissionDenied:    ExitPermissionDenied,
		ErrCodeDiscoveryFailed:     ExitDiscoveryFailed,
		ErrCodeNetworkError:        ExitNetworkError,
		ErrCodeTimeout:             ExitTimeout,
		ErrCodeRateLimited:         ExitRateLimited,
		ErrCodeDownloadFailed:      ExitDownloadFailed,
		ErrCodeSizeMismatch:        ExitDownloadFailed,
		ErrCodeHashMismatch:        ExitDownloadFailed,
		ErrCodeFilesystem:          ExitFilesystem,
		ErrCodeInvalidArgument:     ExitInvalidArgument,
		ErrCodeInvalidConfig:       ExitInvalidConfig,
		ErrCodeBatchPartialFailure: ExitBatchPartialFailure,
		ErrCodeCancelled:           ExitCancelled,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps err reachable through errors.Is/As
func WrapAppError(cliErr types.CLIError, err error) *AppError {
	return &AppError{CLIError: cliErr, cause: err}
}

// ErrorCode returns the code of the first AppError in err's chain, or ErrCodeUnknown
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	return ErrCodeUnknown
}

// CLIErrorFrom converts any error into a CLIError, keeping AppError details
func CLIErrorFrom(err error, fallbackCode string) types.CLIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	return NewCLIError(fallbackCode, err.Error()).Build()
}
