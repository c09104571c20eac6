package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/joblink/joblink-etl/internal/joblink"
)

// DirectConfig controls the direct HTTP tier.
type DirectConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Direct implements joblink.Fetcher with a plain GET through the Colly
// collector: desktop user agent, redirects followed.
type Direct struct {
	cfg           DirectConfig
	baseCollector *colly.Collector
}

// NewDirect builds the direct tier.
func NewDirect(cfg DirectConfig) *Direct {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Direct{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET.
func (d *Direct) Fetch(ctx context.Context, url string) (joblink.FetchOutcome, error) {
	var (
		result   joblink.FetchOutcome
		fetchErr error
	)
	start := time.Now()

	collector := d.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	timeout := d.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = joblink.FetchOutcome{
			Status:   r.StatusCode,
			FinalURL: r.Request.URL.String(),
			HTML:     string(r.Body),
			Provider: joblink.ProviderDirect,
			Duration: time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			// Non-2xx with a body is still a tier result, not an error.
			result = joblink.FetchOutcome{
				Status:   r.StatusCode,
				FinalURL: r.Request.URL.String(),
				HTML:     string(r.Body),
				Provider: joblink.ProviderDirect,
				Duration: time.Since(start),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return joblink.FetchOutcome{}, fmt.Errorf("direct fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return joblink.FetchOutcome{}, fmt.Errorf("direct fetch: %w", fetchErr)
		}
		if err != nil && result.Status == 0 {
			return joblink.FetchOutcome{}, fmt.Errorf("direct visit: %w", err)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
