package testing

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/odshare/internal/types"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext(shareID string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		ShareID:     shareID,
		RequestType: requestType,
		TraceID:     "test-trace-id",
	}
}

// Item is a node of a fake share
type Item struct {
	ID       string
	Name     string
	Folder   bool
	Content  []byte
	Children []*Item

	// ReportedSize overrides the size advertised in listings when non-nil
	ReportedSize *int64
	// SHA256 overrides the advertised sha256 hash when non-empty
	SHA256 string
	// NoDownloadURL drops @content.downloadUrl from a file entry
	NoDownloadURL bool
}

// Folder builds a folder item
func Folder(id, name string, children ...*Item) *Item {
	return &Item{ID: id, Name: name, Folder: true, Children: children}
}

// File builds a file item with the given content
func File(id, name, content string) *Item {
	return &Item{ID: id, Name: name, Content: []byte(content)}
}

// ShareServer is an httptest server speaking the subset of the OneDrive
// shares API used by odshare: share root and node expansion with
// $expand=children, plus download URLs.
type ShareServer struct {
	*httptest.Server

	mu           sync.Mutex
	roots        map[string]*Item
	items        map[string]map[string]*Item
	failNodes    map[string]int
	failContent  map[string]int
	truncate     map[string]bool
	nextLinks    map[string]bool
	contentDelay time.Duration

	discoveryRequests atomic.Int64
	contentRequests   atomic.Int64
	inFlight          atomic.Int64
	maxInFlight       atomic.Int64
}

// NewShareServer starts a fake share server closed on test cleanup
func NewShareServer(t *testing.T) *ShareServer {
	t.Helper()

	s := &ShareServer{
		roots:       make(map[string]*Item),
		items:       make(map[string]map[string]*Item),
		failNodes:   make(map[string]int),
		failContent: make(map[string]int),
		truncate:    make(map[string]bool),
		nextLinks:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/shares/{share}/driveItem", s.handleRoot)
	mux.HandleFunc("GET /v1.0/shares/{share}/driveItem/items/{node}", s.handleNode)
	mux.HandleFunc("GET /content/{share}/{item}", s.handleContent)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to configure clients with
func (s *ShareServer) BaseURL() string {
	return s.URL + "/v1.0"
}

// ContentURL is the download URL advertised for itemID
func (s *ShareServer) ContentURL(shareID, itemID string) string {
	return s.URL + "/content/" + shareID + "/" + itemID + "?download&tempauth=fake-token"
}

// AddShare registers a share whose root is root
func (s *ShareServer) AddShare(shareID string, root *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roots[shareID] = root
	index := make(map[string]*Item)
	stack := []*Item{root}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		index[item.ID] = item
		stack = append(stack, item.Children...)
	}
	s.items[shareID] = index
}

// FailNode makes expansion of nodeID answer with status
func (s *ShareServer) FailNode(nodeID string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNodes[nodeID] = status
}

// FailContent makes the download of itemID answer with status
func (s *ShareServer) FailContent(itemID string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failContent[itemID] = status
}

// TruncateContent makes the download of itemID end early
func (s *ShareServer) TruncateContent(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate[itemID] = true
}

// AdvertiseNextLink adds children@odata.nextLink to the expansion of nodeID
func (s *ShareServer) AdvertiseNextLink(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLinks[nodeID] = true
}

// SetContentDelay holds every download response for d before writing it
func (s *ShareServer) SetContentDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contentDelay = d
}

// DiscoveryRequests counts share root and node expansion requests
func (s *ShareServer) DiscoveryRequests() int {
	return int(s.discoveryRequests.Load())
}

// ContentRequests counts download requests
func (s *ShareServer) ContentRequests() int {
	return int(s.contentRequests.Load())
}

// MaxConcurrentDownloads is the highest number of downloads served at once
func (s *ShareServer) MaxConcurrentDownloads() int {
	return int(s.maxInFlight.Load())
}

// ResetCounters zeroes the request counters
func (s *ShareServer) ResetCounters() {
	s.discoveryRequests.Store(0)
	s.contentRequests.Store(0)
	s.maxInFlight.Store(0)
}

func (s *ShareServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.discoveryRequests.Add(1)
	shareID := r.PathValue("share")

	s.mu.Lock()
	root := s.roots[shareID]
	s.mu.Unlock()

	if root == nil {
		writeError(w, http.StatusNotFound, "itemNotFound", "share not found")
		return
	}
	s.writeExpansion(w, r, shareID, root)
}

func (s *ShareServer) handleNode(w http.ResponseWriter, r *http.Request) {
	s.discoveryRequests.Add(1)
	shareID := r.PathValue("share")
	nodeID := r.PathValue("node")

	s.mu.Lock()
	item := s.items[shareID][nodeID]
	status := s.failNodes[nodeID]
	s.mu.Unlock()

	if status != 0 {
		writeError(w, status, "generalException", "injected failure")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "itemNotFound", "item not found")
		return
	}
	s.writeExpansion(w, r, shareID, item)
}

func (s *ShareServer) writeExpansion(w http.ResponseWriter, r *http.Request, shareID string, item *Item) {
	if r.URL.Query().Get("$expand") != "children" {
		writeError(w, http.StatusBadRequest, "invalidRequest", "expected $expand=children")
		return
	}

	body := s.driveItem(shareID, item)
	for _, child := range item.Children {
		body.Children = append(body.Children, s.driveItem(shareID, child))
	}

	s.mu.Lock()
	if s.nextLinks[item.ID] {
		body.ChildrenNextLink = s.BaseURL() + "/shares/" + shareID + "/driveItem/items/" + item.ID + "/children?$skiptoken=2"
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *ShareServer) driveItem(shareID string, item *Item) types.DriveItem {
	out := types.DriveItem{ID: item.ID, Name: item.Name}
	if item.Folder {
		out.Folder = &types.FolderFacet{ChildCount: len(item.Children)}
		return out
	}

	out.Size = int64(len(item.Content))
	if item.ReportedSize != nil {
		out.Size = *item.ReportedSize
	}
	sum1 := sha1.Sum(item.Content)
	sum256 := sha256.Sum256(item.Content)
	hashes := &types.Hashes{
		SHA1Hash:   strings.ToUpper(hex.EncodeToString(sum1[:])),
		SHA256Hash: strings.ToUpper(hex.EncodeToString(sum256[:])),
	}
	if item.SHA256 != "" {
		hashes.SHA256Hash = item.SHA256
	}
	out.File = &types.FileFacet{MimeType: "application/octet-stream", Hashes: hashes}
	if !item.NoDownloadURL {
		out.DownloadURL = s.ContentURL(shareID, item.ID)
	}
	return out
}

func (s *ShareServer) handleContent(w http.ResponseWriter, r *http.Request) {
	s.contentRequests.Add(1)
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxInFlight.Load()
		if current <= seen || s.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	shareID := r.PathValue("share")
	itemID := r.PathValue("item")

	s.mu.Lock()
	item := s.items[shareID][itemID]
	status := s.failContent[itemID]
	truncate := s.truncate[itemID]
	delay := s.contentDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if item == nil || item.Folder {
		http.NotFound(w, r)
		return
	}

	if truncate {
		// Advertise more bytes than are sent so the client sees an unexpected EOF.
		w.Header().Set("Content-Length", strconv.Itoa(len(item.Content)+16))
		_, _ = w.Write(item.Content)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(item.Content)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}
