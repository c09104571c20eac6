// Package audit models the human-readable provenance trail kept for each
// processed item. A ledger is a mapping from token kind to its latest
// fields, displayed as an ordered sequence of kinds by first-seen position:
//
//	parse:{provider=gh-api, signals=jsonld-org+h1, conf=0.90} | notes:{mode=llm}
//
// Re-appending a token of an existing kind replaces it in place; tokens of
// other kinds are never touched.
package audit

import (
	"regexp"
	"strings"
)

// Delimiter separates rendered tokens in the display form.
const Delimiter = " | "

// Field is one key=value pair inside a token, in insertion order.
type Field struct {
	Key   string
	Value string
}

// Token is a named group of fields.
type Token struct {
	Kind   string
	Fields []Field
}

// NewToken builds a token from alternating key, value arguments.
func NewToken(kind string, kv ...string) Token {
	t := Token{Kind: kind}
	for i := 0; i+1 < len(kv); i += 2 {
		t.Fields = append(t.Fields, Field{Key: kv[i], Value: kv[i+1]})
	}
	return t
}

// Render serializes a single token as kind:{k=v, k2=v2}.
func (t Token) Render() string {
	var b strings.Builder
	b.WriteString(t.Kind)
	b.WriteString(":{")
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.Value)
	}
	b.WriteString("}")
	return b.String()
}

// Ledger is an ordered set of tokens, at most one per kind.
type Ledger struct {
	tokens []Token
}

var tokenRe = regexp.MustCompile(`([A-Za-z0-9_-]+):\{([^}]*)\}`)

// Parse reconstructs a Ledger from its display form. Unrecognized text is
// dropped; parsing the output of Render is lossless.
func Parse(s string) *Ledger {
	l := &Ledger{}
	for _, m := range tokenRe.FindAllStringSubmatch(s, -1) {
		tok := Token{Kind: m[1]}
		for _, pair := range strings.Split(m[2], ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			k, v, _ := strings.Cut(pair, "=")
			tok.Fields = append(tok.Fields, Field{Key: k, Value: v})
		}
		l.Append(tok)
	}
	return l
}

// Append adds a token, replacing any existing token of the same kind in
// place so the first-seen kind order is preserved.
func (l *Ledger) Append(t Token) {
	for i, existing := range l.tokens {
		if existing.Kind == t.Kind {
			l.tokens[i] = t
			return
		}
	}
	l.tokens = append(l.tokens, t)
}

// Get returns the token of the given kind, if present.
func (l *Ledger) Get(kind string) (Token, bool) {
	for _, t := range l.tokens {
		if t.Kind == kind {
			return t, true
		}
	}
	return Token{}, false
}

// Render produces the concatenated display form.
func (l *Ledger) Render() string {
	parts := make([]string, 0, len(l.tokens))
	for _, t := range l.tokens {
		parts = append(parts, t.Render())
	}
	return strings.Join(parts, Delimiter)
}

// Upsert is the string-level convenience used at the records boundary:
// parse the previous display value, append the token, render.
func Upsert(prev string, t Token) string {
	l := Parse(prev)
	l.Append(t)
	return l.Render()
}
