package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dl-alexandre/odshare/internal/api"
	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/metrics"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
)

// Fetcher lists one level of a share. *api.Client implements it.
type Fetcher interface {
	FetchShareRoot(ctx context.Context, reqCtx *types.RequestContext, shareID string) (*types.DriveItem, error)
	FetchNodeChildren(ctx context.Context, reqCtx *types.RequestContext, shareID, nodeID string) (*types.DriveItem, error)
}

// Options configures a TreeScanner
type Options struct {
	// Concurrency is the number of folder listings fetched at once; 1 is sequential
	Concurrency int
	Logger      logging.Logger
	Metrics     *metrics.Recorder
}

// TreeScanner discovers the complete folder tree of a share
type TreeScanner struct {
	fetcher     Fetcher
	concurrency int
	logger      logging.Logger
	metrics     *metrics.Recorder
}

func NewTreeScanner(fetcher Fetcher, opts Options) *TreeScanner {
	if opts.Concurrency < 1 {
		opts.Concurrency = utils.DefaultDiscoveryConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &TreeScanner{
		fetcher:     fetcher,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// pendingFolder is a discovered folder whose children are not yet listed
type pendingFolder struct {
	node *types.Node
	path string
}

// BuildTree fetches the share root and expands every folder below it. The
// returned tree is complete: every folder's children are resolved. Any failed
// listing aborts the build and no tree is returned.
func (s *TreeScanner) BuildTree(ctx context.Context, shareID string) (*types.Node, error) {
	logger := s.logger.WithContext(ctx)
	start := time.Now()

	reqCtx := api.NewRequestContext(shareID, "", types.RequestTypeShareRoot)
	rootItem, err := s.fetcher.FetchShareRoot(ctx, reqCtx, shareID)
	s.recordRequest(err)
	if err != nil {
		return nil, discoveryError(shareID, "", "", err)
	}

	name := rootItem.Name
	if name == "" {
		name = shareID
	}
	root := types.NewFolderNode(rootItem.ID, name)
	logger.Info("Discovering share",
		logging.F("shareId", shareID),
		logging.F("root", name),
		logging.F("concurrency", s.concurrency),
	)

	visited := map[string]bool{rootItem.ID: true}
	var stack []pendingFolder
	stack = s.attach(logger, root, "", rootItem, visited, stack)

	folders := 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, discoveryError(shareID, "", "", err)
		}

		waveSize := min(s.concurrency, len(stack))
		wave := make([]pendingFolder, waveSize)
		for i := range wave {
			wave[i] = stack[len(stack)-1-i]
		}
		stack = stack[:len(stack)-waveSize]

		listings := make([]*types.DriveItem, waveSize)
		g, gctx := errgroup.WithContext(ctx)
		for i, folder := range wave {
			g.Go(func() error {
				reqCtx := api.NewRequestContext(shareID, folder.node.ID, types.RequestTypeNodeChildren)
				logger.Debug("Listing folder",
					logging.F("nodeId", folder.node.ID),
					logging.F("path", folder.path),
				)
				item, err := s.fetcher.FetchNodeChildren(gctx, reqCtx, shareID, folder.node.ID)
				s.recordRequest(err)
				if err != nil {
					return discoveryError(shareID, folder.node.ID, folder.path, err)
				}
				listings[i] = item
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			logger.Error("Discovery aborted",
				logging.F("shareId", shareID),
				logging.F("error", err.Error()),
			)
			return nil, err
		}

		// Children are attached in wave order on this goroutine only.
		for i, folder := range wave {
			stack = s.attach(logger, folder.node, folder.path, listings[i], visited, stack)
			folders++
		}
	}

	files := root.CountFiles()
	elapsed := time.Since(start)
	s.metrics.RecordDiscovery(shareID, elapsed, files)
	logger.Info("Share discovered",
		logging.F("shareId", shareID),
		logging.F("folders", folders),
		logging.F("files", files),
		logging.F("duration_ms", elapsed.Milliseconds()),
	)
	return root, nil
}

// attach adds listing's children to node and pushes child folders so that
// they are popped in listing order.
func (s *TreeScanner) attach(logger logging.Logger, node *types.Node, nodePath string, listing *types.DriveItem, visited map[string]bool, stack []pendingFolder) []pendingFolder {
	var folders []pendingFolder
	for i := range listing.Children {
		item := &listing.Children[i]
		if item.ID == "" {
			logger.Warn("Skipping item without an ID",
				logging.F("parentId", node.ID),
				logging.F("name", item.Name),
			)
			continue
		}
		if _, dup := node.Children[item.ID]; dup {
			logger.Warn("Duplicate item in listing",
				logging.F("parentId", node.ID),
				logging.F("itemId", item.ID),
			)
			continue
		}

		child := types.NewNodeFromItem(item)
		node.Children[child.ID] = child
		if !child.IsFolder() {
			continue
		}
		if item.File != nil {
			logger.Warn("File has no download URL; treating it as a folder",
				logging.F("itemId", item.ID),
				logging.F("name", item.Name),
			)
		}
		if visited[child.ID] {
			logger.Warn("Folder already discovered; not expanding again",
				logging.F("itemId", child.ID),
			)
			continue
		}
		visited[child.ID] = true
		folders = append(folders, pendingFolder{node: child, path: joinPath(nodePath, child.Name)})
	}

	for i := len(folders) - 1; i >= 0; i-- {
		stack = append(stack, folders[i])
	}
	return stack
}

func (s *TreeScanner) recordRequest(err error) {
	if err == nil {
		s.metrics.RecordDiscoveryRequest("ok")
		return
	}
	s.metrics.RecordDiscoveryRequest(utils.CLIErrorFrom(err, utils.ErrCodeDiscoveryFailed).Code)
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// discoveryError wraps err as DISCOVERY_FAILED, keeping the underlying code
// and the share and node identifiers in the context.
func discoveryError(shareID, nodeID, nodePath string, err error) error {
	cause := utils.CLIErrorFrom(err, utils.ErrCodeDiscoveryFailed)
	code := utils.ErrCodeDiscoveryFailed
	if cause.Code == utils.ErrCodeCancelled || errors.Is(err, context.Canceled) {
		code = utils.ErrCodeCancelled
	}

	msg := fmt.Sprintf("discovery of share %s failed", shareID)
	if nodeID != "" {
		msg = fmt.Sprintf("discovery of share %s failed at %q", shareID, nodePath)
	}

	builder := utils.NewCLIError(code, msg+": "+cause.Message).
		WithRetryable(cause.Retryable).
		WithContext("shareId", shareID).
		WithContext("causeCode", cause.Code)
	if nodeID != "" {
		builder.WithContext("nodeId", nodeID)
		builder.WithContext("path", nodePath)
	}
	if cause.HTTPStatus != 0 {
		builder.WithHTTPStatus(cause.HTTPStatus)
	}
	return utils.WrapAppError(builder.Build(), err)
}
