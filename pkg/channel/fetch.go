package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
)

// Fetcher downloads attachments referenced by URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*model.Attachment, error)
}

// HTTPFetcher downloads attachments over HTTP and rejects oversized bodies
type HTTPFetcher struct {
	client  *http.Client
	maxSize int64
	header  http.Header
}

// FetcherOption configures HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithFetchHeader adds a header (e.g. Authorization for Graph API media URLs)
func WithFetchHeader(key, value string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.header.Set(key, value)
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// NewHTTPFetcher creates an HTTPFetcher
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		maxSize: MaxAttachmentSize,
		header:  http.Header{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*model.Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create attachment request")
	}
	for k, v := range f.header {
		req.Header[k] = v
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download attachment")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected attachment response", goerr.V("status", resp.StatusCode))
	}
	if resp.ContentLength > f.maxSize {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("The file is too large. The limit is %d MB.", f.maxSize>>20),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read attachment")
	}
	if int64(len(data)) > f.maxSize {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("The file is too large. The limit is %d MB.", f.maxSize>>20),
		}
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || normalizeMIMEType(mimeType) == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	return &model.Attachment{
		Name:     path.Base(req.URL.Path),
		MIMEType: normalizeMIMEType(mimeType),
		Data:     data,
	}, nil
}
