package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/muse-store/miniapp/internal/platform/observability"
)

const defaultFetchTimeout = 20 * time.Second

// ErrFetchFailed signals a remote image that could not be downloaded.
var ErrFetchFailed = errors.New("media: remote fetch failed")

// Fetcher downloads remote images for the generation branch.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithMaxBytes overrides the download limit.
func WithMaxBytes(limit int64) FetcherOption {
	return func(f *Fetcher) {
		if limit > 0 {
			f.maxBytes = limit
		}
	}
}

// NewFetcher constructs a fetcher with a bounded client.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: defaultFetchTimeout},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fetch downloads url and returns it as an image data URI.
func (f *Fetcher) Fetch(ctx context.Context, url string) (dataURI string, err error) {
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", fmt.Errorf("%w: unsupported url", ErrFetchFailed)
	}
	ctx, finish := observability.StartSpan(ctx, "media.fetch", attribute.String("media.url", observability.SanitizeURL(url)))
	defer func() { finish(err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "image/*")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	payload, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return toImageDataURI(payload)
}
