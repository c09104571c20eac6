package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joblink/joblink-etl/internal/joblink"
)

// maxRenderTimeoutMs is the cap the render service enforces on navigation.
const maxRenderTimeoutMs = 20000

// RemoteRendererConfig configures the HTTP render service client.
type RemoteRendererConfig struct {
	BaseURL   string // e.g. https://renderer.example.run.app/render
	Key       string // shared secret, sent as x-renderer-key
	Wait      string // domcontentloaded, load, networkidle
	TimeoutMs int
}

// RemoteRenderer implements joblink.Renderer against the render service's
// GET /render?url=...&wait=...&timeout=... JSON contract.
type RemoteRenderer struct {
	cfg    RemoteRendererConfig
	client *http.Client
}

// NewRemoteRenderer builds the client. Returns an error when the base URL
// is missing.
func NewRemoteRenderer(cfg RemoteRendererConfig) (*RemoteRenderer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("renderer base URL is required")
	}
	if cfg.Wait == "" {
		cfg.Wait = "domcontentloaded"
	}
	if cfg.TimeoutMs <= 0 || cfg.TimeoutMs > maxRenderTimeoutMs {
		cfg.TimeoutMs = 12000
	}
	return &RemoteRenderer{
		cfg: cfg,
		client: &http.Client{
			// Leave headroom over the service-side navigation timeout.
			Timeout: time.Duration(cfg.TimeoutMs)*time.Millisecond + 10*time.Second,
		},
	}, nil
}

type renderResponse struct {
	Status   int    `json:"status"`
	FinalURL string `json:"finalUrl"`
	HTML     string `json:"html"`
	Ms       int64  `json:"ms"`
}

// Render requests a server-side rendered snapshot of the URL.
func (r *RemoteRenderer) Render(ctx context.Context, target string) (joblink.FetchOutcome, error) {
	q := url.Values{}
	q.Set("url", target)
	q.Set("wait", r.cfg.Wait)
	q.Set("timeout", fmt.Sprintf("%d", r.cfg.TimeoutMs))

	sep := "?"
	if strings.Contains(r.cfg.BaseURL, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+sep+q.Encode(), nil)
	if err != nil {
		return joblink.FetchOutcome{}, fmt.Errorf("build render request: %w", err)
	}
	if r.cfg.Key != "" {
		req.Header.Set("x-renderer-key", r.cfg.Key)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return joblink.FetchOutcome{}, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return joblink.FetchOutcome{}, fmt.Errorf("render HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return joblink.FetchOutcome{}, fmt.Errorf("read render response: %w", err)
	}
	var decoded renderResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return joblink.FetchOutcome{}, fmt.Errorf("decode render response: %w", err)
	}

	finalURL := decoded.FinalURL
	if finalURL == "" {
		finalURL = target
	}
	return joblink.FetchOutcome{
		Status:   decoded.Status,
		FinalURL: finalURL,
		HTML:     decoded.HTML,
		Provider: joblink.ProviderRenderer,
		Duration: time.Duration(decoded.Ms) * time.Millisecond,
	}, nil
}
