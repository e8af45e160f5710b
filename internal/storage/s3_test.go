package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3Store(t *testing.T, endpoint string) *S3Store {
	t.Helper()
	store, err := NewS3Store(context.Background(), S3Config{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	require.NoError(t, err)
	return store
}

func TestNewS3Store(t *testing.T) {
	store := newTestS3Store(t, "http://localhost:4566") // LocalStack-like endpoint
	assert.Equal(t, "us-east-1", store.region)
	assert.NotNil(t, store.presigner)
}

func TestS3Store_SignedDownloadURL(t *testing.T) {
	store := newTestS3Store(t, "http://localhost:4566")

	raw, err := store.SignedDownloadURL(context.Background(), "private-photos", "users/u1/clip 1.mp4", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/private-photos/users/u1/"), "path-style URL expected, got %s", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	_, err = store.SignedDownloadURL(context.Background(), "private-photos", "", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestS3Store_Upload_MockServer(t *testing.T) {
	// Create a mock S3 server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}

		if !strings.Contains(r.URL.Path, "/final-videos/final_videos/u1/job-1.mp4") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "video/mp4" {
			t.Errorf("unexpected content type: %s", ct)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if !strings.Contains(string(body), "test content") {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newTestS3Store(t, server.URL)

	loc, err := store.Upload(context.Background(), "final-videos", "final_videos/u1/job-1.mp4",
		bytes.NewReader([]byte("test content")), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "s3://final-videos/final_videos/u1/job-1.mp4", loc)
}

func TestS3Store_Upload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := newTestS3Store(t, server.URL)
	_, err := store.Upload(context.Background(), "final-videos", "k.mp4", bytes.NewReader([]byte("x")), "video/mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload to S3")
}
