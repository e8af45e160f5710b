package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
)

// Static errors for downloads.
var (
	// ErrUnsupportedScheme is returned for URLs that are not http, https or file.
	ErrUnsupportedScheme = errors.New("storage: unsupported URL scheme")
	// ErrDownloadFailed is returned for non-2xx download responses.
	ErrDownloadFailed = errors.New("storage: download failed")
)

// MediaKind is the expected kind of a downloaded file.
type MediaKind string

const (
	// KindVideo expects a video container.
	KindVideo MediaKind = "video"
	// KindAudio expects an audio file.
	KindAudio MediaKind = "audio"
)

// sniffBytes is how much of a file header filetype needs.
const sniffBytes = 262

// FetchResult describes a downloaded file.
type FetchResult struct {
	Path  string
	Bytes int64
	// MIME is the sniffed MIME type, empty when unknown.
	MIME string
}

// Fetcher downloads URLs to local files.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses one with a 5 minute timeout.
func NewFetcher(httpClient *http.Client, logger *slog.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{httpClient: httpClient, logger: logger}
}

// Fetch downloads rawURL to dest. The header is sniffed and a mismatch with
// want is logged; it is not an error because the transcoder is the final
// judge of what it can decode.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string, want MediaKind) (FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return FetchResult{}, fmt.Errorf("parse download URL: %w", err)
	}

	var n int64
	switch u.Scheme {
	case "http", "https":
		n, err = f.fetchHTTP(ctx, rawURL, dest)
	case "file":
		n, err = copyFile(u.Path, dest)
	default:
		return FetchResult{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		_ = os.Remove(dest)
		return FetchResult{}, err
	}

	res := FetchResult{Path: dest, Bytes: n, MIME: f.sniff(dest, want)}
	f.logger.Debug("downloaded object",
		slog.String("dest", dest),
		slog.String("size", humanize.IBytes(uint64(n))),
		slog.String("mime", res.MIME),
	)
	return res, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	return writeFile(dest, resp.Body)
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src) // #nosec G304 - path comes from a URL this service signed
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrObjectNotFound, src)
		}
		return 0, fmt.Errorf("open source file: %w", err)
	}
	defer in.Close()
	return writeFile(dest, in)
}

func writeFile(dest string, r io.Reader) (int64, error) {
	out, err := os.Create(dest) // #nosec G304 - dest is inside the job scratch directory
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("copy download data: %w", err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close output file: %w", err)
	}
	return n, nil
}

// sniff returns the detected MIME type and warns when it does not match want.
func (f *Fetcher) sniff(path string, want MediaKind) string {
	file, err := os.Open(path) // #nosec G304 - file was just written by Fetch
	if err != nil {
		return ""
	}
	defer file.Close()

	head := make([]byte, sniffBytes)
	n, _ := io.ReadFull(file, head)
	head = head[:n]

	kind, _ := filetype.Match(head)
	var ok bool
	switch want {
	case KindVideo:
		ok = filetype.IsVideo(head)
	case KindAudio:
		ok = filetype.IsAudio(head)
	default:
		ok = true
	}
	if !ok {
		f.logger.Warn("downloaded file does not look like expected media",
			slog.String("path", path),
			slog.String("want", string(want)),
			slog.String("detected", kind.MIME.Value),
		)
	}
	return kind.MIME.Value
}
