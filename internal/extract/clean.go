package extract

import (
	"regexp"
	"strings"
)

var (
	tagRe      = regexp.MustCompile(`<[^>]*>`)
	emojiRe    = regexp.MustCompile(`[\x{2190}-\x{21FF}\x{2300}-\x{23FF}\x{2460}-\x{27BF}\x{2B00}-\x{2BFF}\x{2600}-\x{26FF}\x{1F000}-\x{1FAFF}\x{FE0F}]`)
	locationRe = regexp.MustCompile(`\s*[-–—,]\s*(?:[A-Z][A-Za-z.]+(?:\s+[A-Z][A-Za-z.]+)*\s*,\s*)?[A-Z]{2}$`)
	reqIDRe    = regexp.MustCompile(`(?i)\s*[-–—,]?\s*((JR|Req|R|ID|Job)[\s#:]*\d+|\d{5,})\s*$`)
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
)

// DecodeEntities decodes the minimal set of HTML entities that show up in
// scraped titles.
func DecodeEntities(s string) string {
	return entityReplacer.Replace(s)
}

// StripEmojis removes pictographic emoji and variation selectors without
// touching CJK or RTL text.
func StripEmojis(s string) string {
	return emojiRe.ReplaceAllString(s, "")
}

// CleanRole normalizes an extracted job title: strips tags, decodes
// entities, removes emoji, removes a known company prefix/suffix, then
// trailing "City, ST" locations and requisition IDs.
//
//	CleanRole("Acme — Senior Software Engineer – Req#8932, CA", "Acme")
//	  => "Senior Software Engineer"
func CleanRole(title, company string) string {
	if title == "" {
		return ""
	}
	r := tagRe.ReplaceAllString(title, "")
	r = DecodeEntities(r)
	r = StripEmojis(r)
	if company != "" {
		c := regexp.QuoteMeta(company)
		prefixRe := regexp.MustCompile(`(?i)^\s*` + c + `\s*[-–—:]*\s*`)
		suffixRe := regexp.MustCompile(`(?i)\s*[-–—:]*\s*` + c + `\s*$`)
		r = prefixRe.ReplaceAllString(r, "")
		r = suffixRe.ReplaceAllString(r, "")
	}
	// Location and requisition suffixes can stack ("… – Req#8932, CA");
	// strip until neither matches.
	for i := 0; i < 4; i++ {
		next := locationRe.ReplaceAllString(r, "")
		next = reqIDRe.ReplaceAllString(next, "")
		if next == r {
			break
		}
		r = next
	}
	return collapse(r)
}

// TitleCaseSlug converts an ATS tenant slug like "acme-corp" to "Acme Corp".
func TitleCaseSlug(slug string) string {
	parts := strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

var splitRe = regexp.MustCompile(`\s[-–—]\s`)

// SplitCompanyRole attempts the "Company — Role" rescue: when a title holds
// a dash-separated pair with non-trivial text on both sides, return the two
// halves. Reports ok=false otherwise.
func SplitCompanyRole(title string) (company, role string, ok bool) {
	parts := splitRe.Split(title, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	company = strings.TrimSpace(parts[0])
	role = strings.TrimSpace(parts[1])
	if company == "" || role == "" {
		return "", "", false
	}
	return company, role, true
}
