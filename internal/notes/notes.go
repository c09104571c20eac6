// Package notes generates the LinkedIn outreach pair (invite + follow-up)
// for a resolved job posting. The model writes them when it is available;
// otherwise a deterministic template does.
package notes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joblink/joblink-etl/internal/canonical"
	"github.com/joblink/joblink-etl/internal/extract"
	"github.com/joblink/joblink-etl/internal/llm"
)

const (
	inviteLimit  = 280
	previewLimit = 1000
)

// Modes recorded in the notes:{mode=...} audit token.
const (
	ModeLLM      = "llm"
	ModeTemplate = "template"
)

// Client is the model behind LLM-written notes.
type Client interface {
	Notes(ctx context.Context, snippet llm.NotesSnippet) (llm.Note, error)
}

// Generator produces outreach notes. A nil client means template-only.
type Generator struct {
	client Client
	log    *zap.Logger
}

// NewGenerator builds a Generator.
func NewGenerator(client Client, log *zap.Logger) *Generator {
	return &Generator{client: client, log: log}
}

// BuildSnippet packages the job page, the already-parsed fields and the
// user profile into the single source of truth for the notes prompt.
// Company and role come from the record and are never overwritten here.
func BuildSnippet(finalURL, html, company, role string, profile map[string]string) llm.NotesSnippet {
	sig := extract.Collect(html)
	return llm.NotesSnippet{
		URL:         canonical.Canonicalize(finalURL),
		Company:     company,
		Role:        role,
		H1:          sig.H1,
		OGTitle:     sig.OGTitle,
		OGSite:      sig.OGSiteName,
		Title:       sig.Title,
		BodyPreview: extract.TextPreview(html, previewLimit),
		Profile:     profile,
	}
}

// Generate returns the outreach pair and the mode that produced it. Model
// failures fall back to the template and are never fatal.
func (g *Generator) Generate(ctx context.Context, snippet llm.NotesSnippet) (llm.Note, string) {
	if g.client != nil {
		note, err := g.client.Notes(ctx, snippet)
		if err == nil {
			note.Invite = clip(note.Invite, inviteLimit)
			note.Meta = ModeLLM
			return note, ModeLLM
		}
		g.log.Warn("llm notes failed, using template",
			zap.String("url", snippet.URL), zap.Error(err))
	}
	return g.template(snippet), ModeTemplate
}

func (g *Generator) template(snippet llm.NotesSnippet) llm.Note {
	profile := snippet.Profile
	hook := profile["one-line hook"]
	if hook == "" {
		hook = profile["headline"]
	}
	if hook == "" {
		hook = "software engineer"
	}
	company := snippet.Company
	if company == "" {
		company = "your company"
	}
	role := snippet.Role
	if role == "" {
		role = "this role"
	}
	skills := profile["top skills"]
	if skills == "" {
		skills = "full-stack development and shipping production features"
	}

	invite := fmt.Sprintf("Hi there — I applied for %s at %s. I'm a %s and would love to connect.",
		role, company, hook)
	followup := fmt.Sprintf("Thanks for connecting! I just applied for %s at %s. "+
		"My background includes %s. "+
		"If there’s a chance to chat, I’d value 10–15 minutes to share how I can contribute.",
		role, company, skills)

	return llm.Note{
		Invite:   clip(invite, inviteLimit),
		Followup: followup,
		Meta:     ModeTemplate,
	}
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
