// Package resolve orchestrates the tiered fetch strategy and the
// weighted-signal decision algorithm into one deterministic resolution
// per URL.
package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joblink/joblink-etl/internal/audit"
	"github.com/joblink/joblink-etl/internal/extract"
	"github.com/joblink/joblink-etl/internal/hosts"
	"github.com/joblink/joblink-etl/internal/joblink"
	"github.com/joblink/joblink-etl/internal/llm"
	"github.com/joblink/joblink-etl/internal/metrics"
)

// maxUnwrapDepth bounds recursive aggregator unwrapping. Aggregators that
// link to other aggregators are rare; one hop covers the real cases.
const maxUnwrapDepth = 2

// APITier resolves URLs whose shape identifies a known ATS posting.
type APITier interface {
	Resolve(ctx context.Context, url string) (joblink.FetchOutcome, bool)
}

// Extractor is the escalation model behind the decision algorithm.
type Extractor interface {
	ExtractCompanyRole(ctx context.Context, snippet llm.ExtractSnippet) (llm.Extraction, error)
}

// Engine owns one resolution pipeline: classifier, fetch tiers, decision
// algorithm, escalations. It is stateless aside from network calls and safe
// for concurrent use.
type Engine struct {
	api       APITier
	direct    joblink.Fetcher
	renderer  joblink.Renderer
	classify  *hosts.Classifier
	extractor Extractor
	log       *zap.Logger
}

// Deps carries the engine's collaborators. Renderer and Extractor are
// optional; the corresponding tiers are skipped when nil.
type Deps struct {
	API       APITier
	Direct    joblink.Fetcher
	Renderer  joblink.Renderer
	Classify  *hosts.Classifier
	Extractor Extractor
	Logger    *zap.Logger
}

// New builds an Engine. API, Direct, Classify and Logger are required.
func New(deps Deps) (*Engine, error) {
	if deps.API == nil || deps.Direct == nil {
		return nil, fmt.Errorf("api and direct tiers are required")
	}
	if deps.Classify == nil {
		return nil, fmt.Errorf("host classifier is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Engine{
		api:       deps.API,
		direct:    deps.Direct,
		renderer:  deps.Renderer,
		classify:  deps.Classify,
		extractor: deps.Extractor,
		log:       deps.Logger,
	}, nil
}

// Resolve walks the fetch tiers in strict precedence: ATS API, direct HTTP,
// rendered HTML, aggregator unwrap, then whatever is left (rendered
// preferred). The first tier that yields a usable result wins.
func (e *Engine) Resolve(ctx context.Context, rawURL string) (joblink.FetchOutcome, error) {
	return e.resolve(ctx, rawURL, 0)
}

func (e *Engine) resolve(ctx context.Context, rawURL string, depth int) (joblink.FetchOutcome, error) {
	if out, ok := e.api.Resolve(ctx, rawURL); ok {
		metrics.ObserveFetch(out.Provider, "ok", out.Duration)
		return out, nil
	}

	direct, directErr := e.direct.Fetch(ctx, rawURL)
	if directErr != nil {
		metrics.ObserveFetch(joblink.ProviderDirect, "error", 0)
		e.log.Debug("direct fetch failed", zap.String("url", rawURL), zap.Error(directErr))
	} else {
		metrics.ObserveFetch(joblink.ProviderDirect, outcomeLabel(direct), direct.Duration)
		if direct.OK() && extract.UsefulSignal(direct.HTML) {
			return direct, nil
		}
	}

	var (
		rendered   joblink.FetchOutcome
		renderedOK bool
	)
	if e.renderer != nil {
		r, err := e.renderer.Render(ctx, rawURL)
		if err != nil {
			metrics.ObserveFetch(joblink.ProviderRenderer, "error", 0)
			e.log.Debug("render failed", zap.String("url", rawURL), zap.Error(err))
		} else {
			metrics.ObserveFetch(joblink.ProviderRenderer, outcomeLabel(r), r.Duration)
			rendered = r
			renderedOK = true
			if r.OK() && extract.UsefulSignal(r.HTML) {
				return r, nil
			}
		}
	}

	// Aggregator pages usually just wrap an ATS posting; follow the first
	// ATS link through the tiers above.
	if depth < maxUnwrapDepth && e.classify.IsAggregator(hosts.FromURL(rawURL)) {
		body := rendered.HTML
		if body == "" {
			body = direct.HTML
		}
		if atsURL := extract.FirstLink(body, e.classify.IsATS); atsURL != "" {
			inner, err := e.resolve(ctx, atsURL, depth+1)
			if err == nil && inner.Status > 0 {
				if !strings.HasSuffix(inner.Provider, joblink.UnwrappedSuffix) {
					inner.Provider += joblink.UnwrappedSuffix
				}
				e.log.Info("unwrapped aggregator link",
					zap.String("from", rawURL),
					zap.String("to", atsURL),
					zap.String("provider", inner.Provider))
				return inner, nil
			}
		}
	}

	// Last resort: signal-poor is still better than nothing.
	if renderedOK && rendered.Status > 0 {
		return rendered, nil
	}
	if directErr == nil && direct.Status > 0 {
		return direct, nil
	}
	if directErr != nil {
		return joblink.FetchOutcome{}, fmt.Errorf("all fetch tiers failed for %s: %w", rawURL, directErr)
	}
	return joblink.FetchOutcome{}, fmt.Errorf("all fetch tiers failed for %s", rawURL)
}

// Process resolves a URL and runs the decision algorithm over the outcome,
// including the one-shot renderer escalation when the heuristics produced
// nothing at all.
func (e *Engine) Process(ctx context.Context, rawURL string) (joblink.Decision, joblink.FetchOutcome, error) {
	out, err := e.Resolve(ctx, rawURL)
	if err != nil {
		return joblink.Decision{}, joblink.FetchOutcome{}, err
	}

	if out.APICompany != "" || out.APIRole != "" {
		return e.decideFromAPI(out), out, nil
	}

	finalURL := out.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	decision := e.Decide(ctx, out.HTML, finalURL)

	if decision.Confidence == 0 && e.renderer != nil && !strings.HasPrefix(out.Provider, joblink.ProviderRenderer) {
		rendered, rerr := e.renderer.Render(ctx, finalURL)
		if rerr != nil {
			metrics.ObserveEscalation("renderer", "error")
			e.log.Debug("renderer escalation failed", zap.String("url", finalURL), zap.Error(rerr))
		} else if rendered.HTML != "" {
			refURL := rendered.FinalURL
			if refURL == "" {
				refURL = finalURL
			}
			second := e.Decide(ctx, rendered.HTML, refURL)
			if second.Confidence > decision.Confidence {
				second.AuditTokens = append(second.AuditTokens, audit.NewToken("fetch", "escalated", "renderer"))
				decision = second
				metrics.ObserveEscalation("renderer", "ok")
			} else {
				metrics.ObserveEscalation("renderer", "no-gain")
			}
		}
	}
	return decision, out, nil
}

// Result assembles the downstream event for a finished resolution.
func (e *Engine) Result(ownerKey, rowID, rawURL string, d joblink.Decision, out joblink.FetchOutcome) joblink.Result {
	return joblink.Result{
		OwnerKey:  ownerKey,
		RowID:     rowID,
		URL:       rawURL,
		Canonical: d.CanonicalURL,
		Company:   d.Company,
		Role:      d.Role,
		Provider:  out.Provider,
		Signals:   d.Signals(),
		Conf:      d.Confidence,
		At:        time.Now().UTC(),
	}
}

func outcomeLabel(out joblink.FetchOutcome) string {
	if out.OK() {
		return "ok"
	}
	return "http-error"
}
