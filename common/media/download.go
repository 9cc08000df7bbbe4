package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"
)

// download is one remote file to fetch into a local path
type download struct {
	URL  string
	Path string
}

// Downloader fetches job inputs over HTTP
type Downloader struct {
	client      *http.Client
	concurrency int
}

func NewDownloader(client *http.Client, concurrency int) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Downloader{client: client, concurrency: concurrency}
}

// FetchAll downloads every item, at most concurrency at a time. The first
// failure cancels the rest.
func (d *Downloader) FetchAll(ctx context.Context, items []download) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, item := range items {
		g.Go(func() error {
			return d.fetch(ctx, item)
		})
	}
	return g.Wait()
}

func (d *Downloader) fetch(ctx context.Context, item download) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return fmt.Errorf("download %s: %w", item.URL, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", item.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download %s: unexpected status %d", item.URL, resp.StatusCode)
	}

	f, err := os.Create(item.Path)
	if err != nil {
		return fmt.Errorf("download %s: %w", item.URL, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", item.URL, err)
	}
	return f.Close()
}
