package resolve

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joblink/joblink-etl/internal/audit"
	"github.com/joblink/joblink-etl/internal/joblink"
	"github.com/joblink/joblink-etl/internal/llm"
)

type stubExtractor struct {
	extraction llm.Extraction
	err        error
	snippets   []llm.ExtractSnippet
}

func (s *stubExtractor) ExtractCompanyRole(_ context.Context, snippet llm.ExtractSnippet) (llm.Extraction, error) {
	s.snippets = append(s.snippets, snippet)
	if s.err != nil {
		return llm.Extraction{}, s.err
	}
	return s.extraction, nil
}

func findToken(d joblink.Decision, kind string) (audit.Token, bool) {
	for _, tok := range d.AuditTokens {
		if tok.Kind == kind {
			return tok, true
		}
	}
	return audit.Token{}, false
}

func TestDecideJSONLD(t *testing.T) {
	e := newEngine(t, Deps{})
	d := e.Decide(context.Background(), jsonldPage, "https://careers.example.com/jobs/1")
	require.Equal(t, "Acme", d.Company)
	require.Equal(t, "Senior Engineer", d.Role)
	require.InDelta(t, 1.0, d.Confidence, 1e-9)
	require.Contains(t, d.SignalPath, "jsonld-org")
	require.Contains(t, d.SignalPath, "jsonld-title")
	require.Equal(t, "jsonld-org+jsonld-title", d.Signals())
}

func TestDecideATSSlugAndH1(t *testing.T) {
	e := newEngine(t, Deps{})
	html := "<html><body><h1>Staff Platform Engineer</h1></body></html>"
	d := e.Decide(context.Background(), html, "https://jobs.lever.co/globex-labs/abc-123")
	require.Equal(t, "Globex Labs", d.Company)
	require.Equal(t, "Staff Platform Engineer", d.Role)
	require.InDelta(t, 0.70, d.Confidence, 1e-9)
	require.Equal(t, []string{"ats-slug", "h1"}, d.SignalPath)
}

func TestDecideOGSiteNameSkippedOnAggregators(t *testing.T) {
	e := newEngine(t, Deps{})
	html := `<html><head>
<meta property="og:site_name" content="LinkedIn"/>
<meta property="og:title" content="Senior Data Engineer"/>
</head><body></body></html>`

	d := e.Decide(context.Background(), html, "https://www.linkedin.com/jobs/view/1")
	require.Empty(t, d.Company, "aggregator brand must not become the company")
	require.Equal(t, "Senior Data Engineer", d.Role)
	require.LessOrEqual(t, d.Confidence, 0.5)

	d = e.Decide(context.Background(), html, "https://careers.example.com/jobs/1")
	require.Equal(t, "LinkedIn", d.Company)
}

func TestDecideTitleSplitRescue(t *testing.T) {
	e := newEngine(t, Deps{})
	html := "<html><head><title>Globex – Staff Engineer</title></head><body></body></html>"
	d := e.Decide(context.Background(), html, "https://careers.example.com/jobs/2")
	require.Equal(t, "Globex", d.Company)
	require.Equal(t, "Staff Engineer", d.Role)
	require.GreaterOrEqual(t, d.Confidence, 0.55)
	require.Contains(t, d.SignalPath, "title-split")
}

func TestDecideConfidenceBounds(t *testing.T) {
	e := newEngine(t, Deps{})
	cases := []struct {
		name string
		html string
		url  string
	}{
		{"empty", "", "https://example.com"},
		{"role only", "<html><body><h1>Engineer II</h1></body></html>", "https://example.com/x"},
		{"jsonld role only", `<html><script type="application/ld+json">{"@type":"JobPosting","title":"Engineer"}</script></html>`, "https://example.com/y"},
		{"full", jsonldPage, "https://example.com/z"},
	}
	for _, tc := range cases {
		d := e.Decide(context.Background(), tc.html, tc.url)
		require.GreaterOrEqual(t, d.Confidence, 0.0, tc.name)
		require.LessOrEqual(t, d.Confidence, 1.0, tc.name)
		if d.Company == "" || d.Role == "" {
			require.LessOrEqual(t, d.Confidence, 0.5, tc.name)
		}
	}
}

func TestDecideSignalPathDefault(t *testing.T) {
	e := newEngine(t, Deps{})
	d := e.Decide(context.Background(), "", "https://example.com")
	require.Empty(t, d.SignalPath)
	require.Equal(t, "heuristic", d.Signals())
}

func TestDecideLLMFillsMissingFields(t *testing.T) {
	extractor := &stubExtractor{extraction: llm.Extraction{Company: "Initech", Role: "Backend Engineer"}}
	e := newEngine(t, Deps{Extractor: extractor})

	html := "<html><body><h1>Join our team</h1><p>We build billing software.</p></body></html>"
	d := e.Decide(context.Background(), html, "https://careers.example.com/jobs/3")

	require.Equal(t, "Initech", d.Company)
	require.Equal(t, "Backend Engineer", d.Role)
	require.GreaterOrEqual(t, d.Confidence, 0.6)
	require.Len(t, extractor.snippets, 1)
	require.Contains(t, extractor.snippets[0].BodyPreview, "billing software")

	var found bool
	for _, tok := range d.AuditTokens {
		if tok.Kind == "extract" {
			found = true
			require.Equal(t, "mode", tok.Fields[0].Key)
			require.Equal(t, "llm", tok.Fields[0].Value)
		}
	}
	require.True(t, found, "expected extract:{mode=llm} token")
}

func TestDecideLLMKeepsHeuristicFields(t *testing.T) {
	extractor := &stubExtractor{extraction: llm.Extraction{Company: "Wrong Co", Role: "Wrong Role"}}
	e := newEngine(t, Deps{Extractor: extractor})

	// Company resolved heuristically; only the generic role is replaced.
	html := "<html><body><h1>Apply Now</h1></body></html>"
	d := e.Decide(context.Background(), html, "https://jobs.lever.co/initech/abc")
	require.Equal(t, "Initech", d.Company)
	require.Equal(t, "Wrong Role", d.Role)
}

func TestDecideLLMErrorIsFallible(t *testing.T) {
	extractor := &stubExtractor{err: fmt.Errorf("llm HTTP 429: rate limited")}
	e := newEngine(t, Deps{Extractor: extractor})

	html := "<html><body><h1>Senior Engineer</h1></body></html>"
	d := e.Decide(context.Background(), html, "https://careers.example.com/jobs/4")
	require.Equal(t, "Senior Engineer", d.Role)

	tok, ok := findToken(d, "extract")
	require.True(t, ok)
	require.Equal(t, "err", tok.Fields[1].Key)
	require.Contains(t, tok.Fields[1].Value, "429")
}

func TestDecideLLMSkippedWhenConfident(t *testing.T) {
	extractor := &stubExtractor{extraction: llm.Extraction{Company: "X", Role: "Y"}}
	e := newEngine(t, Deps{Extractor: extractor})

	d := e.Decide(context.Background(), jsonldPage, "https://careers.example.com/jobs/5")
	require.Equal(t, "Acme", d.Company)
	require.Empty(t, extractor.snippets, "confident heuristics must not call the model")
	require.InDelta(t, 1.0, d.Confidence, 1e-9)
}

func TestDecideCanonicalizesURL(t *testing.T) {
	e := newEngine(t, Deps{})
	d := e.Decide(context.Background(), jsonldPage, "https://careers.example.com/jobs/1?utm_source=news&gh_src=x&team=core")
	require.Equal(t, "https://careers.example.com/jobs/1?team=core", d.CanonicalURL)
}
