package extract

import (
	"encoding/json"
	"strings"
)

// JobPosting is the pair of fields mined from a schema.org JobPosting node.
type JobPosting struct {
	Company string
	Role    string
}

// maxJSONLDDepth bounds the recursive search through nested objects and
// @graph containers.
const maxJSONLDDepth = 12

// ParseJobPosting decodes one JSON-LD block and searches it for a node
// whose @type includes "JobPosting". The @type field may be a single string
// or a list. Returns ok=false on malformed JSON or when no node matches.
func ParseJobPosting(raw string) (JobPosting, bool) {
	var node any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &node); err != nil {
		return JobPosting{}, false
	}
	found := findJobPosting(node, 0)
	if found == nil {
		return JobPosting{}, false
	}
	jp := JobPosting{
		Role: stringField(found, "title"),
	}
	switch org := found["hiringOrganization"].(type) {
	case map[string]any:
		jp.Company = stringField(org, "name")
	case string:
		jp.Company = org
	}
	if jp.Company == "" && jp.Role == "" {
		return JobPosting{}, false
	}
	return jp, true
}

func findJobPosting(node any, depth int) map[string]any {
	if depth > maxJSONLDDepth {
		return nil
	}
	switch n := node.(type) {
	case []any:
		for _, item := range n {
			if r := findJobPosting(item, depth+1); r != nil {
				return r
			}
		}
	case map[string]any:
		if hasType(n["@type"], "jobposting") {
			return n
		}
		if g, ok := n["@graph"]; ok {
			if r := findJobPosting(g, depth+1); r != nil {
				return r
			}
		}
		for _, v := range n {
			switch v.(type) {
			case map[string]any, []any:
				if r := findJobPosting(v, depth+1); r != nil {
					return r
				}
			}
		}
	}
	return nil
}

func hasType(t any, want string) bool {
	switch v := t.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), want)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.Contains(strings.ToLower(s), want) {
				return true
			}
		}
	}
	return false
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
