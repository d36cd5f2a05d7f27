// Package fetch retrieves source documents over HTTP with a polite crawl
// delay, a hard size cap, and redirect detection.
//
// Redirect policy: the HEAD probe follows redirects (counting hops via
// CheckRedirect) and the subsequent GET requests the probe's final URL
// directly. A source is "direct" only when the probe saw zero hops.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/MachinaAI/machina-core/engine/domain"
)

// DefaultTimeout is the total wall budget per URL. The queue replay is the
// retry mechanism, so there are no in-call retries.
const DefaultTimeout = 60 * time.Second

// Result is the raw outcome of fetching one URL.
type Result struct {
	Body        []byte
	ContentType string
	FinalURL    string
	Redirected  bool
	SizeBytes   int64
}

// Opts configures a Fetcher.
type Opts struct {
	MaxBytes   int64
	UserAgent  string
	CrawlDelay time.Duration
	Timeout    time.Duration
}

// Fetcher retrieves documents. Safe for concurrent use; the crawl-delay
// limiter is shared across calls.
type Fetcher struct {
	client  *http.Client
	head    *http.Client
	limiter *rate.Limiter
	opts    Opts
}

// New creates a Fetcher. The transport is instrumented with otelhttp so
// fetches show up as spans.
func New(opts Opts) *Fetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "machina-kb/1.0"
	}
	transport := otelhttp.NewTransport(http.DefaultTransport)

	every := rate.Every(opts.CrawlDelay)
	if opts.CrawlDelay <= 0 {
		every = rate.Inf
	}

	return &Fetcher{
		// The GET client never follows redirects; it requests the
		// HEAD probe's final URL.
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		head:    &http.Client{Transport: transport},
		limiter: rate.NewLimiter(every, 1),
		opts:    opts,
	}
}

// Fetch retrieves the document at rawURL within the wall budget.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		return Result{}, classify(rawURL, err)
	}

	finalURL, redirected, err := f.probe(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, &domain.HTTPError{URL: rawURL, Status: resp.StatusCode}
	}
	if resp.ContentLength > f.opts.MaxBytes {
		return Result{}, fmt.Errorf("fetch: %s: %d bytes: %w", rawURL, resp.ContentLength, domain.ErrFetchOversized)
	}

	// Read one byte past the cap to tell "exactly at cap" from "over".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return Result{}, classify(rawURL, err)
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return Result{}, fmt.Errorf("fetch: %s: %w", rawURL, domain.ErrFetchOversized)
	}

	return Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    finalURL,
		Redirected:  redirected,
		SizeBytes:   int64(len(body)),
	}, nil
}

// probe issues the HEAD request, following redirects and counting hops.
// Servers that reject HEAD (405/501) are treated as direct; the GET decides.
func (f *Fetcher) probe(ctx context.Context, rawURL string) (finalURL string, redirected bool, err error) {
	hops := 0
	client := &http.Client{
		Transport: f.head.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			hops = len(via)
			if hops >= 10 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("fetch: build probe: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", false, classify(rawURL, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusMethodNotAllowed,
		resp.StatusCode == http.StatusNotImplemented:
		return rawURL, false, nil
	default:
		return "", false, &domain.HTTPError{URL: rawURL, Status: resp.StatusCode}
	}

	return resp.Request.URL.String(), hops > 0, nil
}

// classify maps transport errors onto the fetch error kinds.
func classify(rawURL string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("fetch: %s: %w", rawURL, domain.ErrFetchTimeout)
	case errors.Is(err, context.Canceled):
		return err
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("fetch: %s: %w", rawURL, domain.ErrFetchTimeout)
	}
	if strings.Contains(err.Error(), "too many redirects") {
		return fmt.Errorf("fetch: %s: %w", rawURL, domain.ErrFetchUnreachable)
	}
	return fmt.Errorf("fetch: %s: %v: %w", rawURL, err, domain.ErrFetchUnreachable)
}
