package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/joblink/joblink-etl/internal/audit"
	"github.com/joblink/joblink-etl/internal/canonical"
	"github.com/joblink/joblink-etl/internal/extract"
	"github.com/joblink/joblink-etl/internal/hosts"
	"github.com/joblink/joblink-etl/internal/joblink"
	"github.com/joblink/joblink-etl/internal/llm"
	"github.com/joblink/joblink-etl/internal/metrics"
)

// Signal weights. Accumulated additively, then clamped.
const (
	weightJSONLD     = 0.5
	weightATSSlug    = 0.35
	weightH1         = 0.35
	weightOGTitle    = 0.25
	weightTitle      = 0.15
	weightOGSiteName = 0.25

	minConfTitleSplit = 0.55
	minConfLLM        = 0.6
	maxConfMissing    = 0.5
)

const previewLimit = 2000

// Decide runs the weighted-signal extraction over an HTML body. Signals are
// tried strongest-first; each one that fires adds its weight and its name to
// the signal path. Missing company or role caps confidence at 0.5 no matter
// how much weight accumulated.
func (e *Engine) Decide(ctx context.Context, html, finalURL string) joblink.Decision {
	host := hosts.FromURL(finalURL)
	isAgg := e.classify.IsAggregator(host)
	canonicalURL := canonical.Canonicalize(finalURL)
	sig := extract.Collect(html)

	var (
		company string
		role    string
		conf    float64
		path    []string
		tokens  []audit.Token
	)

	// JSON-LD, the strongest signal when present.
	if sig.JSONLD.Company != "" {
		company = sig.JSONLD.Company
		conf += weightJSONLD
		path = append(path, "jsonld-org")
	}
	if sig.JSONLD.Role != "" {
		role = sig.JSONLD.Role
		conf += weightJSONLD
		path = append(path, "jsonld-title")
	}

	// Tenant slug from the URL, e.g. jobs.lever.co/acme-corp/...
	if company == "" {
		if slug := hosts.CompanySlug(finalURL); slug != "" {
			company = extract.TitleCaseSlug(slug)
			conf += weightATSSlug
			path = append(path, "ats-slug")
		}
	}

	// Role from H1, then og:title, then the title tag.
	if role == "" {
		switch {
		case sig.H1 != "":
			role = sig.H1
			conf += weightH1
			path = append(path, "h1")
		case sig.OGTitle != "":
			role = sig.OGTitle
			conf += weightOGTitle
			path = append(path, "og:title")
		case sig.Title != "":
			role = sig.Title
			conf += weightTitle
			path = append(path, "title")
		}
	}

	// og:site_name names the aggregator's own brand on aggregator pages,
	// so only trust it elsewhere.
	if company == "" && sig.OGSiteName != "" && !isAgg {
		company = sig.OGSiteName
		conf += weightOGSiteName
		path = append(path, "og:site_name")
	}

	// Rescue "Company — Role" baked into the role text.
	if company == "" && role != "" {
		if c, r, ok := extract.SplitCompanyRole(role); ok {
			company = c
			role = r
			path = append(path, "title-split")
			if conf < minConfTitleSplit {
				conf = minConfTitleSplit
			}
		}
	}

	role = extract.CleanRole(role, company)

	// Last resort: ask the model, but only to fill what is still missing.
	if e.extractor != nil {
		looksGeneric := role == "" || extract.IsGenericTitle(role)
		if looksGeneric || company == "" {
			snippet := llm.ExtractSnippet{
				URL:         canonicalURL,
				H1:          sig.H1,
				OGTitle:     sig.OGTitle,
				OGSite:      sig.OGSiteName,
				Title:       sig.Title,
				BodyPreview: extract.TextPreview(html, previewLimit),
			}
			guess, err := e.extractor.ExtractCompanyRole(ctx, snippet)
			if err != nil {
				tokens = append(tokens, audit.NewToken("extract", "mode", "llm", "err", shortErr(err)))
				metrics.ObserveEscalation("llm", "error")
				e.log.Warn("llm extraction failed", zap.String("url", finalURL), zap.Error(err))
			} else {
				if company == "" && guess.Company != "" {
					company = guess.Company
				}
				if looksGeneric && guess.Role != "" {
					role = extract.CleanRole(guess.Role, company)
				}
				if conf < minConfLLM {
					conf = minConfLLM
				}
				tokens = append(tokens, audit.NewToken("extract", "mode", "llm"))
				metrics.ObserveEscalation("llm", "ok")
			}
		}
	}

	if company == "" && conf > maxConfMissing {
		conf = maxConfMissing
	}
	if role == "" && conf > maxConfMissing {
		conf = maxConfMissing
	}
	conf = clamp01(conf)

	d := joblink.Decision{
		Company:      company,
		Role:         role,
		CanonicalURL: canonicalURL,
		Confidence:   conf,
		SignalPath:   path,
		AuditTokens:  tokens,
	}
	metrics.ObserveDecision(leadingSignal(path), conf)
	return d
}

// decideFromAPI turns an API-tier outcome into a decision without touching
// HTML: the ATS told us both fields, so the signals rank with JSON-LD.
func (e *Engine) decideFromAPI(out joblink.FetchOutcome) joblink.Decision {
	var (
		conf float64
		path []string
	)
	company := out.APICompany
	if company != "" {
		conf += weightJSONLD
		path = append(path, "api-org")
	}
	role := extract.CleanRole(out.APIRole, company)
	if role != "" {
		conf += weightJSONLD
		path = append(path, "api-title")
	}
	if company == "" && conf > maxConfMissing {
		conf = maxConfMissing
	}
	if role == "" && conf > maxConfMissing {
		conf = maxConfMissing
	}
	conf = clamp01(conf)

	d := joblink.Decision{
		Company:      company,
		Role:         role,
		CanonicalURL: canonical.Canonicalize(out.FinalURL),
		Confidence:   conf,
		SignalPath:   path,
	}
	metrics.ObserveDecision(leadingSignal(path), conf)
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func leadingSignal(path []string) string {
	if len(path) == 0 {
		return "heuristic"
	}
	return path[0]
}

func shortErr(err error) string {
	s := err.Error()
	if len(s) > 120 {
		return s[:120]
	}
	return s
}
