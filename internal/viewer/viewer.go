// Package viewer implements the viewer attachment flow (C9): downloading a
// URL to a per-user temp file, optionally authenticated with a stored OAuth
// token, and serving it back at a same-origin preview URL. Grounded on the
// teacher's internal/tool.WebFetchTool (internal/tool/webfetch.go) — the
// same http.Client-with-timeout fetch shape, size-capped read, and
// Content-Type-aware handling — generalized from "return the body as text"
// to "stream the body to disk and hand back a local file handle".
package viewer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/oauthbroker"
)

// maxDownloadSize is larger than webfetch's 5MB text-extraction cap since
// viewer attachments are whole documents (PDFs, spreadsheets, slide decks)
// that routinely exceed a scraped-page budget.
const maxDownloadSize = 50 * 1024 * 1024

const fetchTimeout = 60 * time.Second

// MaxAge is how long a downloaded attachment survives before Sweep removes
// it (spec.md §4.9: "e.g., 24h").
const MaxAge = 24 * time.Hour

// hostProviders maps a URL host to the OAuth provider whose token should be
// attached as a bearer credential when fetching from that host.
var hostProviders = map[string]string{
	"drive.google.com":    "google",
	"docs.google.com":     "google",
	"www.googleapis.com":  "google",
	"api.github.com":      "github",
	"raw.githubusercontent.com": "github",
	"slack.com":           "slack",
	"files.slack.com":     "slack",
	"api.notion.com":      "notion",
}

// File is the attachment handle returned to the client and echoed back by
// it into the next turn's /chat/stream request body as ViewerFile.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	PreviewURL   string `json:"previewUrl"`
	SourceURL    string `json:"sourceUrl,omitempty"`
	FileURI      string `json:"fileUri"`
	AbsolutePath string `json:"absolutePath"`
	Size         int64  `json:"size"`
}

// Service downloads attachments into a per-user temp root and tracks them
// in memory so Open/Sweep can find them by id without re-walking the
// filesystem on every request.
type Service struct {
	root   string
	broker *oauthbroker.Broker
	client *http.Client

	mu    sync.Mutex
	index map[string]*File // keyed by File.ID
}

// New constructs a Service rooted at root (config.Config.ViewerTmpDir()).
func New(root string, broker *oauthbroker.Broker) *Service {
	return &Service{
		root:   root,
		broker: broker,
		client: &http.Client{Timeout: fetchTimeout},
		index:  make(map[string]*File),
	}
}

// filenamePattern matches the on-disk naming scheme "<id>__<sanitized name>"
// used to recover a File's identity after a process restart.
var filenamePattern = regexp.MustCompile(`^([0-9a-f-]{36})__(.*)$`)

// Load rebuilds the in-memory index by walking root, so a restarted
// process can still resolve previewUrl requests for files downloaded
// before the restart — the temp directory, not the index, is the durable
// state (spec.md §8: "the MCP session pool and the viewer temp directory
// (both rebuildable)").
func (s *Service) Load() error {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, userDir := range entries {
		if !userDir.IsDir() {
			continue
		}
		userPath := filepath.Join(s.root, userDir.Name())
		files, err := os.ReadDir(userPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			m := filenamePattern.FindStringSubmatch(f.Name())
			if m == nil {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			abs := filepath.Join(userPath, f.Name())
			s.index[m[1]] = &File{
				ID:           m[1],
				Name:         m[2],
				PreviewURL:   "/api/viewer/files/" + m[1],
				FileURI:      "file://" + abs,
				AbsolutePath: abs,
				Size:         info.Size(),
			}
		}
	}
	return nil
}

// Download fetches sourceURL into a new temp file under userID's root,
// attaching an OAuth bearer token when the host matches a known provider
// and the user has a connected account for it (spec.md §4.9: "proxying
// through an OAuth token when the URL matches a known provider host").
func (s *Service) Download(ctx context.Context, userID, sourceURL, filename, mimeType string) (*File, error) {
	if !strings.HasPrefix(sourceURL, "http://") && !strings.HasPrefix(sourceURL, "https://") {
		return nil, apperr.Validation("viewer: url must start with http:// or https://")
	}

	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, apperr.Validation("viewer: invalid url: " + err.Error())
	}
	req.Header.Set("User-Agent", "hearth-viewer/1.0")

	if err := s.attachBearer(ctx, req, userID); err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.ProviderError("viewer: download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.ProviderError(fmt.Sprintf("viewer: download returned status %d", resp.StatusCode), nil)
	}
	if resp.ContentLength > maxDownloadSize {
		return nil, apperr.Validation("viewer: attachment exceeds size limit")
	}

	id := uuid.NewString()
	userDir := filepath.Join(s.root, sanitizeID(userID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return nil, apperr.Internal(err)
	}

	absPath := filepath.Join(userDir, id+"__"+sanitizeFilename(filename))
	out, err := os.Create(absPath)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer out.Close()

	limited := io.LimitReader(resp.Body, maxDownloadSize+1)
	n, err := io.Copy(out, limited)
	if err != nil {
		os.Remove(absPath)
		return nil, apperr.Internal(err)
	}
	if n > maxDownloadSize {
		os.Remove(absPath)
		return nil, apperr.Validation("viewer: attachment exceeds size limit")
	}

	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}

	f := &File{
		ID:           id,
		Name:         filename,
		MimeType:     mimeType,
		PreviewURL:   "/api/viewer/files/" + id,
		SourceURL:    sourceURL,
		FileURI:      "file://" + absPath,
		AbsolutePath: absPath,
		Size:         n,
	}

	s.mu.Lock()
	s.index[id] = f
	s.mu.Unlock()

	return f, nil
}

// attachBearer sets an Authorization header on req when req's host matches
// a known OAuth provider and userID has a connected account for it. A user
// with no connection for a known host simply fetches unauthenticated,
// since not every URL on a known host requires auth (e.g. a public
// Google Docs export link).
func (s *Service) attachBearer(ctx context.Context, req *http.Request, userID string) error {
	provider, ok := hostProviders[req.URL.Hostname()]
	if !ok || s.broker == nil {
		return nil
	}

	conns, err := s.broker.ListConnections(userID)
	if err != nil {
		return err
	}
	accounts := conns[provider]
	if len(accounts) == 0 {
		return nil
	}

	tok, err := s.broker.GetToken(ctx, userID, provider, accounts[0].AccountEmail)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindOAuthRequired {
			return nil
		}
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return nil
}

// Open resolves an id to its on-disk path and mime type for the static
// serve route.
func (s *Service) Open(id string) (*File, error) {
	s.mu.Lock()
	f, ok := s.index[id]
	s.mu.Unlock()
	if !ok {
		return nil, apperr.Validation("viewer: unknown file id")
	}
	if _, err := os.Stat(f.AbsolutePath); err != nil {
		return nil, apperr.Validation("viewer: file no longer available")
	}
	return f, nil
}

// Sweep removes every tracked file whose modification time is older than
// MaxAge (spec.md §4.9's 24h temp-file sweep).
func (s *Service) Sweep() (removed int, err error) {
	cutoff := time.Now().Add(-MaxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, f := range s.index {
		info, statErr := os.Stat(f.AbsolutePath)
		if os.IsNotExist(statErr) {
			delete(s.index, id)
			continue
		}
		if statErr != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(f.AbsolutePath); rmErr != nil && !os.IsNotExist(rmErr) {
				err = rmErr
				continue
			}
			delete(s.index, id)
			removed++
		}
	}
	return removed, err
}

// StartSweeper runs Sweep on a ticker until ctx is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." {
		name = "attachment"
	}
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

func sanitizeID(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}
