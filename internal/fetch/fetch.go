// Package fetch retrieves remote policy documents and manifests.
//
// A fetch is a single blocking GET. There is no retry: a transport error or
// a non-2xx status aborts synthesis with a NetworkFailure.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lex00/wetwire-eks-go/internal/failure"
)

// maxBody caps the size of a fetched document.
const maxBody = 16 << 20

// Fetcher retrieves the body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches over HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
	// Timeout bounds a single fetch. Zero means no timeout beyond ctx.
	Timeout time.Duration
	Logger  *zap.Logger
}

// New returns an HTTPFetcher. A nil client uses http.DefaultClient and a
// nil logger discards output.
func New(client *http.Client, timeout time.Duration, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{Client: client, Timeout: timeout, Logger: logger}
}

// Fetch performs one GET and returns the response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.New(failure.NetworkFailure, "fetch", url, err)
	}

	start := time.Now()
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, failure.New(failure.NetworkFailure, "fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.New(failure.NetworkFailure, "fetch", url,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, failure.New(failure.NetworkFailure, "fetch", url, err)
	}
	if len(body) > maxBody {
		return nil, failure.New(failure.NetworkFailure, "fetch", url,
			fmt.Errorf("body exceeds %d bytes", maxBody))
	}

	f.logger().Debug("fetched document",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))
	return body, nil
}

func (f *HTTPFetcher) client() *http.Client {
	if f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}

func (f *HTTPFetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}
