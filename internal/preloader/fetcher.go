// fetcher.go: the URL prefetch boundary. The dispatcher only needs
// "warm this URL"; the default implementation issues a plain GET and
// drains the body so the bytes land in any intermediate HTTP cache.
package preloader

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tvaltari/wayfind-go/internal/errors"
)

// Fetcher warms a single URL.
type Fetcher interface {
	Prefetch(ctx context.Context, url string) error
}

type httpFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates the default HTTP fetcher with the given per
// request timeout.
func NewHTTPFetcher(timeout time.Duration) Fetcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &httpFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *httpFetcher) Prefetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryValidation).
			Component("preloader").
			Build()
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Component("preloader").
			Context("url", url).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("prefetch returned status %d", resp.StatusCode).
			Category(errors.CategoryImageFetch).
			Component("preloader").
			Context("url", url).
			Build()
	}

	_, err = io.Copy(io.Discard, resp.Body)
	return err
}
