// Package canonical normalizes job-posting URLs for stable deduplication.
package canonical

import "net/url"

// trackingParams are deleted from every URL before it is used as an
// identity. Configuration data; extend here.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"gh_src", "src", "source",
	"vq_campaign", "vq_source",
	"__jvst", "__jvsd",
	"codes", "gh_jid",
}

// Canonicalize strips known tracking query parameters and reserializes the
// URL. It is idempotent: canonicalizing an already-canonical URL returns
// the same string. Unparsable input is returned unchanged.
func Canonicalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for _, k := range trackingParams {
		q.Del(k)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
