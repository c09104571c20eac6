// Package fetch implements the network tiers of the resolution engine:
// ATS read APIs, direct HTTP via colly, and rendered HTML via a remote
// render service or a local headless browser.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/joblink/joblink-etl/internal/canonical"
	"github.com/joblink/joblink-etl/internal/extract"
	"github.com/joblink/joblink-etl/internal/joblink"
)

const (
	defaultGreenhouseBase = "https://boards-api.greenhouse.io/v1/boards"
	defaultLeverBase      = "https://api.lever.co/v0/postings"
)

var (
	greenhouseURLRe = regexp.MustCompile(`(?i)https?://(?:boards|job-boards)\.greenhouse\.io/([^/?#]+)/jobs/(\d+)`)
	leverURLRe      = regexp.MustCompile(`(?i)https?://jobs\.lever\.co/([^/?#]+)/([^/?#]+)`)
)

// ATSAPI resolves URLs whose shape identifies a known ATS posting by
// calling that ATS's read-only JSON API directly. An API hit bypasses HTML
// parsing entirely and is authoritative.
type ATSAPI struct {
	client         *http.Client
	greenhouseBase string
	leverBase      string
}

// APIOption customizes an ATSAPI, mainly for tests.
type APIOption func(*ATSAPI)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *ATSAPI) { a.client = c }
}

// WithGreenhouseBase overrides the Greenhouse Boards API base URL.
func WithGreenhouseBase(base string) APIOption {
	return func(a *ATSAPI) { a.greenhouseBase = base }
}

// WithLeverBase overrides the Lever Postings API base URL.
func WithLeverBase(base string) APIOption {
	return func(a *ATSAPI) { a.leverBase = base }
}

// NewATSAPI constructs the API tier.
func NewATSAPI(opts ...APIOption) *ATSAPI {
	a := &ATSAPI{
		client:         &http.Client{Timeout: 15 * time.Second},
		greenhouseBase: defaultGreenhouseBase,
		leverBase:      defaultLeverBase,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolve returns a synthetic FetchOutcome with structured company/role
// hints when the URL matches a known ATS shape and its API answers.
// ok=false means "not this tier": either no shape matched or the API
// failed, and the caller falls through to the next tier.
func (a *ATSAPI) Resolve(ctx context.Context, rawURL string) (joblink.FetchOutcome, bool) {
	if m := greenhouseURLRe.FindStringSubmatch(rawURL); m != nil {
		return a.greenhouse(ctx, m[1], m[2])
	}
	if m := leverURLRe.FindStringSubmatch(rawURL); m != nil {
		return a.lever(ctx, m[1], m[2])
	}
	return joblink.FetchOutcome{}, false
}

type greenhouseJob struct {
	Title string `json:"title"`
}

func (a *ATSAPI) greenhouse(ctx context.Context, company, jobID string) (joblink.FetchOutcome, bool) {
	api := fmt.Sprintf("%s/%s/jobs/%s", a.greenhouseBase, url.PathEscape(company), jobID)
	var job greenhouseJob
	if !a.getJSON(ctx, api, &job) {
		return joblink.FetchOutcome{}, false
	}
	return joblink.FetchOutcome{
		Status:     http.StatusOK,
		FinalURL:   canonical.Canonicalize(fmt.Sprintf("https://boards.greenhouse.io/%s/jobs/%s", company, jobID)),
		Provider:   joblink.ProviderGreenhouseAPI,
		APICompany: extract.TitleCaseSlug(company),
		APIRole:    job.Title,
	}, true
}

type leverPosting struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

func (a *ATSAPI) lever(ctx context.Context, company, postingID string) (joblink.FetchOutcome, bool) {
	api := fmt.Sprintf("%s/%s/%s?mode=json", a.leverBase, url.PathEscape(company), url.PathEscape(postingID))
	var posting leverPosting
	if !a.getJSON(ctx, api, &posting) {
		return joblink.FetchOutcome{}, false
	}
	role := posting.Text
	if role == "" {
		role = posting.Title
	}
	return joblink.FetchOutcome{
		Status:     http.StatusOK,
		FinalURL:   canonical.Canonicalize(fmt.Sprintf("https://jobs.lever.co/%s/%s", company, postingID)),
		Provider:   joblink.ProviderLeverAPI,
		APICompany: extract.TitleCaseSlug(company),
		APIRole:    role,
	}, true
}

func (a *ATSAPI) getJSON(ctx context.Context, apiURL string, v any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false
	}
	return json.Unmarshal(body, v) == nil
}
