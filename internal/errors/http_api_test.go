package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
)

func testRequestContext(rt types.RequestType) *types.RequestContext {
	return &types.RequestContext{ShareID: "s!1", NodeID: "n1", RequestType: rt, TraceID: "trace-12345678"}
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		requestType types.RequestType
		wantCode    string
		wantRetry   bool
	}{
		{"not found", 404, types.RequestTypeShareRoot, utils.ErrCodeFileNotFound, false},
		{"forbidden", 403, types.RequestTypeNodeChildren, utils.ErrCodePermissionDenied, false},
		{"unauthorized", 401, types.RequestTypeShareRoot, utils.ErrCodePermissionDenied, false},
		{"throttled", 429, types.RequestTypeContent, utils.ErrCodeRateLimited, true},
		{"gateway timeout", 504, types.RequestTypeContent, utils.ErrCodeTimeout, true},
		{"server error", 500, types.RequestTypeShareRoot, utils.ErrCodeNetworkError, true},
		{"bad request discovery", 400, types.RequestTypeNodeChildren, utils.ErrCodeDiscoveryFailed, false},
		{"bad request content", 400, types.RequestTypeContent, utils.ErrCodeDownloadFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyHTTPError("onedrive", tt.status, nil, testRequestContext(tt.requestType), logging.NewNoOpLogger())
			var appErr *utils.AppError
			if !stderrors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %T", err)
			}
			if appErr.CLIError.Code != tt.wantCode {
				t.Fatalf("code = %s, want %s", appErr.CLIError.Code, tt.wantCode)
			}
			if appErr.CLIError.Retryable != tt.wantRetry {
				t.Fatalf("retryable = %v, want %v", appErr.CLIError.Retryable, tt.wantRetry)
			}
			if appErr.CLIError.HTTPStatus != tt.status {
				t.Fatalf("status = %d", appErr.CLIError.HTTPStatus)
			}
			if appErr.CLIError.Context["shareId"] != "s!1" || appErr.CLIError.Context["nodeId"] != "n1" {
				t.Fatalf("missing identifiers: %+v", appErr.CLIError.Context)
			}
		})
	}
}

func TestClassifyHTTPErrorBody(t *testing.T) {
	body := []byte(`{"error":{"code":"itemNotFound","message":"The share link does not exist"}}`)
	err := ClassifyHTTPError("onedrive", 404, body, testRequestContext(types.RequestTypeShareRoot), logging.NewNoOpLogger())
	cliErr := utils.CLIErrorFrom(err, utils.ErrCodeUnknown)
	if cliErr.Context["remoteCode"] != "itemNotFound" {
		t.Fatalf("remote code not kept: %+v", cliErr.Context)
	}
	if cliErr.Message != "ShareRoot request failed: The share link does not exist" {
		t.Fatalf("message = %q", cliErr.Message)
	}
	if !IsNotFound(err) {
		t.Fatal("expected IsNotFound")
	}
}

func TestClassifyTransportError(t *testing.T) {
	reqCtx := testRequestContext(types.RequestTypeContent)
	logger := logging.NewNoOpLogger()

	cancelled := ClassifyTransportError("onedrive", fmt.Errorf("get: %w", context.Canceled), reqCtx, logger)
	if utils.ErrorCode(cancelled) != utils.ErrCodeCancelled {
		t.Fatalf("code = %s", utils.ErrorCode(cancelled))
	}
	if !stderrors.Is(cancelled, context.Canceled) {
		t.Fatal("expected context.Canceled in chain")
	}

	deadline := ClassifyTransportError("onedrive", context.DeadlineExceeded, reqCtx, logger)
	if utils.ErrorCode(deadline) != utils.ErrCodeTimeout {
		t.Fatalf("code = %s", utils.ErrorCode(deadline))
	}

	other := ClassifyTransportError("onedrive", stderrors.New("connection refused"), reqCtx, logger)
	if utils.ErrorCode(other) != utils.ErrCodeNetworkError {
		t.Fatalf("code = %s", utils.ErrorCode(other))
	}
}

func TestTrimBody(t *testing.T) {
	if got := TrimBody([]byte("  short  "), 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := TrimBody([]byte("0123456789abc"), 4); got != "0123..." {
		t.Fatalf("got %q", got)
	}
}
