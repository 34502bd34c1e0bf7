package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
)

// APIError is the error body OneDrive returns on non-2xx responses
type APIError struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		InnerError *struct {
			Code string `json:"code"`
		} `json:"innerError,omitempty"`
	} `json:"error"`
}

// ClassifyHTTPError converts a non-2xx response into an AppError. The body is
// optional; when it holds a OneDrive error object its code and message are kept.
func ClassifyHTTPError(service string, status int, body []byte, reqCtx *types.RequestContext, logger logging.Logger) error {
	var code string
	var retryable bool

	switch {
	case status == http.StatusNotFound:
		code = utils.ErrCodeFileNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		code = utils.ErrCodePermissionDenied
	case status == http.StatusTooManyRequests:
		code = utils.ErrCodeRateLimited
		retryable = true
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		code = utils.ErrCodeTimeout
		retryable = true
	case status >= 500:
		code = utils.ErrCodeNetworkError
		retryable = true
	case reqCtx.RequestType == types.RequestTypeContent:
		code = utils.ErrCodeDownloadFailed
	default:
		code = utils.ErrCodeDiscoveryFailed
	}

	message := http.StatusText(status)
	remoteCode := ""
	var apiErr APIError
	if len(body) > 0 && json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
		remoteCode = apiErr.Error.Code
	}

	logger.Error("API error classified",
		logging.F("httpStatus", status),
		logging.F("errorCode", code),
		logging.F("remoteCode", remoteCode),
		logging.F("retryable", retryable),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, fmt.Sprintf("%s request failed: %s", reqCtx.RequestType, message)).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if reqCtx.ShareID != "" {
		builder.WithContext("shareId", reqCtx.ShareID)
	}
	if reqCtx.NodeID != "" {
		builder.WithContext("nodeId", reqCtx.NodeID)
	}
	if remoteCode != "" {
		builder.WithContext("remoteCode", remoteCode)
	}

	switch code {
	case utils.ErrCodeFileNotFound:
		builder.WithContext("suggestedAction", "verify the share ID is correct and the share link is still active")
	case utils.ErrCodePermissionDenied:
		builder.WithContext("suggestedAction", "the share may be restricted or expired")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "wait before running again")
	}

	return utils.NewAppError(builder.Build())
}

// ClassifyTransportError converts a transport failure (no response) into an AppError
func ClassifyTransportError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	code := utils.ErrCodeNetworkError
	retryable := true

	var netErr net.Error
	switch {
	case stderrors.Is(err, context.Canceled):
		code = utils.ErrCodeCancelled
		retryable = false
	case stderrors.Is(err, context.DeadlineExceeded):
		code = utils.ErrCodeTimeout
	case stderrors.As(err, &netErr) && netErr.Timeout():
		code = utils.ErrCodeTimeout
	}

	logger.Error("Transport error",
		logging.F("error", err.Error()),
		logging.F("errorCode", code),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	return utils.WrapAppError(utils.NewCLIError(code, err.Error()).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service).
		Build(), err)
}

// IsNotFound reports whether err is a classified 404
func IsNotFound(err error) bool {
	return utils.ErrorCode(err) == utils.ErrCodeFileNotFound
}

// TrimBody shortens a response body for inclusion in logs
func TrimBody(body []byte, max int) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
