package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp4Header is the start of an ISO base media file.
var mp4Header = append([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00},
	bytes.Repeat([]byte{0}, 300)...)

func TestFetcher_HTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write(mp4Header)
	}))
	defer server.Close()

	var logs bytes.Buffer
	f := NewFetcher(server.Client(), slog.New(slog.NewTextHandler(&logs, nil)))
	dest := filepath.Join(t.TempDir(), "clip_000.mp4")

	res, err := f.Fetch(context.Background(), server.URL+"/clip.mp4?X-Amz-Signature=abc", dest, KindVideo)
	require.NoError(t, err)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, int64(len(mp4Header)), res.Bytes)
	assert.Equal(t, "video/mp4", res.MIME)
	assert.NotContains(t, logs.String(), "does not look like")
}

func TestFetcher_HTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), nil)
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	_, err := f.Fetch(context.Background(), server.URL, dest, KindVideo)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), "403")
	assert.NoFileExists(t, dest)
}

func TestFetcher_FileURLAndMismatchWarning(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(src, []byte("definitely not audio"), 0600))

	var logs bytes.Buffer
	f := NewFetcher(nil, slog.New(slog.NewTextHandler(&logs, nil)))
	dest := filepath.Join(dir, "music.mp3")

	res, err := f.Fetch(context.Background(), "file://"+filepath.ToSlash(src), dest, KindAudio)
	require.NoError(t, err)
	assert.Equal(t, int64(len("definitely not audio")), res.Bytes)
	assert.Empty(t, res.MIME)
	assert.Contains(t, logs.String(), "does not look like expected media")
}

func TestFetcher_FileMissing(t *testing.T) {
	f := NewFetcher(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := f.Fetch(context.Background(), "file:///nonexistent/clip.mp4", filepath.Join(t.TempDir(), "x"), KindVideo)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestFetcher_UnsupportedScheme(t *testing.T) {
	f := NewFetcher(nil, nil)
	_, err := f.Fetch(context.Background(), "ftp://example.com/a.mp4", filepath.Join(t.TempDir(), "x"), KindVideo)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestFetcher_LocalStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	_, err := store.Upload(ctx, "private-photos", "u1/clip.mp4", bytes.NewReader(mp4Header), "video/mp4")
	require.NoError(t, err)

	signed, err := store.SignedDownloadURL(ctx, "private-photos", "u1/clip.mp4", time.Hour)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed, "file://"))

	res, err := NewFetcher(nil, nil).Fetch(ctx, signed, filepath.Join(t.TempDir(), "clip.mp4"), KindVideo)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", res.MIME)
}
