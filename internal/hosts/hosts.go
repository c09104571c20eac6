// Package hosts classifies job-posting hostnames as ATS endpoints or
// aggregators, and knows how to read the tenant slug out of ATS URLs.
// The host lists are data, not code; extend them here or swap them out with
// WithATS/WithAggregators.
package hosts

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultATS lists hosts (matched by suffix) that serve postings directly.
var DefaultATS = []string{
	"lever.co",
	"ashbyhq.com",
	"job-boards.greenhouse.io",
	"boards.greenhouse.io",
	"myworkdayjobs.com",
	"workdayjobs.com",
	"smartrecruiters.com",
	"jobvite.com",
	"apply.workable.com",
	"ats.rippling.com",
	"ultipro.com",
	"icims.com",
	"oraclecloud.com",
	"brassring.com",
	"paylocity.com",
}

// DefaultAggregators lists hosts that wrap or link to postings hosted
// elsewhere.
var DefaultAggregators = []string{
	"jobright.ai",
	"allup.world",
	"ycombinator.com",
	"linkedin.com",
	"indeed.com",
	"glassdoor.com",
	"levels.fyi",
	"builtin.com",
	"builtin.nyc",
	"builtin.chicago",
	"builtin.sf",
	"wellfound.com",
	"angel.co",
	"dice.com",
	"monster.com",
	"ziprecruiter.com",
}

// slug extraction rules per ATS; the first match wins.
var slugRules = []*regexp.Regexp{
	regexp.MustCompile(`(?:job-boards|boards)\.greenhouse\.io/([^/?#]+)/jobs/`),
	regexp.MustCompile(`jobs\.lever\.co/([^/?#]+)/`),
	regexp.MustCompile(`jobs\.ashbyhq\.com/([^/?#]+)/`),
	regexp.MustCompile(`apply\.workable\.com/([^/?#]+)/`),
	regexp.MustCompile(`jobs\.smartrecruiters\.com/([^/?#]+)/`),
	regexp.MustCompile(`jobs\.jobvite\.com/([^/?#]+)/`),
	regexp.MustCompile(`ats\.rippling\.com/([^/?#]+)/`),
	regexp.MustCompile(`myworkdayjobs\.com/(?:[a-z-]+/)?([^/?#]+)/`),
	regexp.MustCompile(`workdayjobs\.com/(?:[a-z-]+/)?([^/?#]+)/`),
	regexp.MustCompile(`recruiting\.paylocity\.com/.*/Details/\d+/([^/?#]+)`),
}

// Classifier answers "is this host a known ATS / aggregator" over static
// pattern lists. The zero value is not usable; call New.
type Classifier struct {
	ats         []string
	aggregators []string
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithATS replaces the ATS host list.
func WithATS(hosts []string) Option {
	return func(c *Classifier) { c.ats = hosts }
}

// WithAggregators replaces the aggregator host list.
func WithAggregators(hosts []string) Option {
	return func(c *Classifier) { c.aggregators = hosts }
}

// New builds a Classifier with the default host lists.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		ats:         DefaultATS,
		aggregators: DefaultAggregators,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsATS reports whether the normalized host belongs to a known ATS.
func (c *Classifier) IsATS(host string) bool {
	return matchSuffix(host, c.ats)
}

// IsAggregator reports whether the normalized host is a known aggregator.
func (c *Classifier) IsAggregator(host string) bool {
	return matchSuffix(host, c.aggregators)
}

func matchSuffix(host string, patterns []string) bool {
	if host == "" {
		return false
	}
	for _, p := range patterns {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

// Normalize lowercases a hostname and strips a leading "www.".
func Normalize(host string) string {
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}

// FromURL extracts the normalized hostname from a raw URL, or "" when the
// URL does not parse.
func FromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return Normalize(u.Hostname())
}

// CompanySlug infers the tenant/company slug from an ATS URL path, e.g.
// jobs.lever.co/acme-corp/... yields "acme-corp". Returns "" when no rule
// matches.
func CompanySlug(rawURL string) string {
	lower := strings.ToLower(rawURL)
	for _, re := range slugRules {
		if m := re.FindStringSubmatch(lower); m != nil {
			return m[1]
		}
	}
	return ""
}
