package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadStreamsBodyToTempFileAndReturnsHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake content"))
	}))
	defer srv.Close()

	root := t.TempDir()
	svc := New(root, nil)

	f, err := svc.Download(context.Background(), "u1", srv.URL+"/doc.pdf", "doc.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.MimeType)
	assert.Equal(t, "/api/viewer/files/"+f.ID, f.PreviewURL)
	assert.FileExists(t, f.AbsolutePath)

	data, err := os.ReadFile(f.AbsolutePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake content", string(data))
}

func TestDownloadRejectsNonHTTPURL(t *testing.T) {
	svc := New(t.TempDir(), nil)
	_, err := svc.Download(context.Background(), "u1", "ftp://example.com/x", "x", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDownloadRejectsOversizedBodyByContentLength(t *testing.T) {
	big := make([]byte, maxDownloadSize+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "60000000")
		_, _ = w.Write(big[:1024])
	}))
	defer srv.Close()

	svc := New(t.TempDir(), nil)
	_, err := svc.Download(context.Background(), "u1", srv.URL+"/big.bin", "big.bin", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDownloadPropagatesNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := New(t.TempDir(), nil)
	_, err := svc.Download(context.Background(), "u1", srv.URL+"/missing.pdf", "missing.pdf", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderError, apperr.KindOf(err))
}

func TestOpenReturnsNotFoundForUnknownID(t *testing.T) {
	svc := New(t.TempDir(), nil)
	_, err := svc.Open("nope")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestOpenRoundTripsAfterDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	svc := New(t.TempDir(), nil)
	f, err := svc.Download(context.Background(), "u1", srv.URL+"/x.txt", "x.txt", "text/plain")
	require.NoError(t, err)

	got, err := svc.Open(f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.AbsolutePath, got.AbsolutePath)
}

func TestLoadRebuildsIndexFromDisk(t *testing.T) {
	root := t.TempDir()
	userDir := filepath.Join(root, "u1")
	require.NoError(t, os.MkdirAll(userDir, 0o755))

	id := "11111111-1111-1111-1111-111111111111"
	path := filepath.Join(userDir, id+"__report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	svc := New(root, nil)
	require.NoError(t, svc.Load())

	f, err := svc.Open(id)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, path, f.AbsolutePath)
}

func TestSweepRemovesFilesOlderThanMaxAge(t *testing.T) {
	root := t.TempDir()
	svc := New(root, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	f, err := svc.Download(context.Background(), "u1", srv.URL+"/x.txt", "x.txt", "")
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(f.AbsolutePath, old, old))

	removed, err := svc.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, f.AbsolutePath)

	_, err = svc.Open(f.ID)
	require.Error(t, err)
}

func TestSweepKeepsRecentFiles(t *testing.T) {
	root := t.TempDir()
	svc := New(root, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	f, err := svc.Download(context.Background(), "u1", srv.URL+"/x.txt", "x.txt", "")
	require.NoError(t, err)

	removed, err := svc.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.FileExists(t, f.AbsolutePath)
}

func TestSanitizeFilenameStripsPathTraversal(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "attachment", sanitizeFilename(".."))
	assert.Equal(t, "report.pdf", sanitizeFilename("report.pdf"))
}

func TestUnknownHostSkipsBearerAttachment(t *testing.T) {
	svc := New(t.TempDir(), nil)
	req, err := http.NewRequest(http.MethodGet, "https://example.com/doc", nil)
	require.NoError(t, err)
	require.NoError(t, svc.attachBearer(context.Background(), req, "u1"))
	assert.Empty(t, req.Header.Get("Authorization"))
}
