// Package extract pulls structured and semi-structured hints out of job
// posting HTML: JSON-LD JobPosting nodes, meta tags, headings, titles and
// ATS hyperlinks. All functions are pure.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joblink/joblink-etl/internal/hosts"
)

// Signals holds everything mined from a page in one pass.
type Signals struct {
	H1         string
	OGTitle    string
	OGSiteName string
	Title      string
	HasJSONLD  bool
	JSONLD     JobPosting
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Collect parses the document once and extracts all signals. A document
// that fails to parse yields empty signals; the decision algorithm degrades
// gracefully on thin input.
func Collect(html string) Signals {
	var sig Signals
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return sig
	}

	sig.H1 = collapse(doc.Find("h1").First().Text())
	sig.Title = collapse(doc.Find("title").First().Text())
	if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		sig.OGTitle = collapse(v)
	}
	if v, ok := doc.Find(`meta[property="og:site_name"]`).First().Attr("content"); ok {
		sig.OGSiteName = collapse(v)
	}

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		sig.HasJSONLD = true
		jp, ok := ParseJobPosting(s.Text())
		if ok {
			sig.JSONLD = jp
			return false
		}
		return true
	})
	return sig
}

// genericTitles are boilerplate phrases that carry no role signal.
// Configuration data; matched case-insensitively by substring.
var genericTitles = []string{
	"job details", "job detail", "careers", "career portal",
	"choose your sign in option", "sign in", "signin", "login", "log in",
	"home", "open positions", "all jobs", "search results", "job search",
	"apply now", "opportunities", "join our team",
}

// IsGenericTitle reports whether a string looks like a boilerplate page
// title rather than a role name. Empty and very short strings are generic.
func IsGenericTitle(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" || len(t) <= 2 {
		return true
	}
	for _, p := range genericTitles {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// Useful reports whether the page likely contains enough signal to parse:
// a JSON-LD block, or a non-generic h1/og:title/title.
func (s Signals) Useful() bool {
	if s.HasJSONLD {
		return true
	}
	return (s.H1 != "" && !IsGenericTitle(s.H1)) ||
		(s.OGTitle != "" && !IsGenericTitle(s.OGTitle)) ||
		(s.Title != "" && !IsGenericTitle(s.Title))
}

// UsefulSignal is the raw-HTML convenience used at the fetch tier boundary.
func UsefulSignal(html string) bool {
	if html == "" {
		return false
	}
	return Collect(html).Useful()
}

// FirstLink returns the first href in the document whose host satisfies the
// predicate. Used to unwrap aggregator pages to their ATS target.
func FirstLink(html string, hostMatch func(host string) bool) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return true
		}
		if hostMatch(hosts.FromURL(href)) {
			found = href
			return false
		}
		return true
	})
	return found
}

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style.*?</style>`)
	anyTagRe      = regexp.MustCompile(`<[^>]+>`)
)

// TextPreview strips scripts, styles and tags, collapses whitespace, and
// returns at most limit characters of visible text. Used to bound LLM
// prompt snippets.
func TextPreview(html string, limit int) string {
	text := scriptBlockRe.ReplaceAllString(html, " ")
	text = styleBlockRe.ReplaceAllString(text, " ")
	text = anyTagRe.ReplaceAllString(text, " ")
	text = collapse(text)
	if len(text) > limit {
		return text[:limit]
	}
	return text
}
