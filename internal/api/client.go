package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dl-alexandre/odshare/internal/errors"
	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
	"github.com/google/uuid"
)

const serviceName = "onedrive"

// maxErrorBody caps how much of a failed response is read for classification
const maxErrorBody = 64 * 1024

// Client talks to the anonymous OneDrive shares API
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	logger     logging.Logger
}

// ClientOptions configures NewClient
type ClientOptions struct {
	BaseURL string
	// Timeout bounds a listing request, and the wait for download response headers
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    logging.Logger
}

// NewClient creates a new shares API client
func NewClient(opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = utils.OneDriveAPIBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(utils.DefaultRequestTimeoutSecs) * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(shareID, nodeID string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		ShareID:     shareID,
		NodeID:      nodeID,
		RequestType: requestType,
		TraceID:     uuid.New().String(),
	}
}

// FetchShareRoot returns the share's root item with its direct children
func (c *Client) FetchShareRoot(ctx context.Context, reqCtx *types.RequestContext, shareID string) (*types.DriveItem, error) {
	endpoint := fmt.Sprintf("%s/shares/%s/driveItem", c.baseURL, url.PathEscape(shareID))
	return c.fetchExpanded(ctx, reqCtx, endpoint)
}

// FetchNodeChildren returns the item nodeID of the share with its direct children
func (c *Client) FetchNodeChildren(ctx context.Context, reqCtx *types.RequestContext, shareID, nodeID string) (*types.DriveItem, error) {
	endpoint := fmt.Sprintf("%s/shares/%s/driveItem/items/%s", c.baseURL, url.PathEscape(shareID), url.PathEscape(nodeID))
	return c.fetchExpanded(ctx, reqCtx, endpoint)
}

func (c *Client) fetchExpanded(ctx context.Context, reqCtx *types.RequestContext, endpoint string) (*types.DriveItem, error) {
	logger := c.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("shareId", reqCtx.ShareID),
		logging.F("nodeId", reqCtx.NodeID),
	)
	start := time.Now()

	ctx, cancel := context.WithTimeout(logging.ContextWithTraceID(ctx, reqCtx.TraceID), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?$expand="+utils.ExpandChildren, nil)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ClassifyTransportError(serviceName, err, reqCtx, c.logger)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Debug("API error body", logging.F("body", errors.TrimBody(body, 512)))
		return nil, errors.ClassifyHTTPError(serviceName, resp.StatusCode, body, reqCtx, c.logger)
	}

	var item types.DriveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		if ctx.Err() != nil {
			return nil, errors.ClassifyTransportError(serviceName, err, reqCtx, c.logger)
		}
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeDiscoveryFailed,
			fmt.Sprintf("%s response could not be decoded: %v", reqCtx.RequestType, err)).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("shareId", reqCtx.ShareID).
			WithContext("nodeId", reqCtx.NodeID).
			Build(), err)
	}

	if item.ChildrenNextLink != "" {
		logger.Warn("Folder listing is paginated; only the first page is mirrored",
			logging.F("shareId", reqCtx.ShareID),
			logging.F("nodeId", item.ID),
			logging.F("name", item.Name),
			logging.F("inlineChildren", len(item.Children)),
		)
	}

	logger.Debug("API operation completed",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("children", len(item.Children)),
	)
	return &item, nil
}

// OpenContent starts a download of a pre-authenticated URL. The timeout covers
// the wait for response headers only; the body streams until closed or until
// ctx is done.
func (c *Client) OpenContent(ctx context.Context, reqCtx *types.RequestContext, downloadURL string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(logging.ContextWithTraceID(ctx, reqCtx.TraceID))
	headerTimer := time.AfterFunc(c.timeout, cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		headerTimer.Stop()
		cancel()
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeDownloadFailed, "invalid download URL").
			WithContext("nodeId", reqCtx.NodeID).
			Build(), err)
	}

	resp, err := c.httpClient.Do(req)
	if !headerTimer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		err = fmt.Errorf("waiting for response headers: %w", context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, errors.ClassifyTransportError(serviceName, err, reqCtx, c.logger)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return nil, errors.ClassifyHTTPError(serviceName, resp.StatusCode, body, reqCtx, c.logger)
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
