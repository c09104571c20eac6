// Package llm calls a chat-completions-compatible endpoint for last-resort
// extraction and outreach note generation. The service is treated as
// fallible: every error is returned to the caller, which keeps its
// heuristic or template result.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds endpoint credentials and model selection.
type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	ExtractModel string // optional override for extraction calls
	Timeout      time.Duration
}

// Client is a minimal chat-completions client.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client. Returns nil when the endpoint or key is missing so
// callers can treat "not configured" as "disabled".
func New(cfg Config) *Client {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.1-8b-instant"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExtractSnippet is the bounded input for an extraction call.
type ExtractSnippet struct {
	URL         string `json:"url"`
	H1          string `json:"h1"`
	OGTitle     string `json:"ogTitle"`
	OGSite      string `json:"ogSite"`
	Title       string `json:"title"`
	BodyPreview string `json:"body_preview"`
}

// Extraction is the strict-JSON reply to an extraction call.
type Extraction struct {
	Company string `json:"company"`
	Role    string `json:"role"`
}

// NotesSnippet packages everything the notes prompt needs.
type NotesSnippet struct {
	URL         string            `json:"url"`
	Company     string            `json:"company"`
	Role        string            `json:"role"`
	H1          string            `json:"h1"`
	OGTitle     string            `json:"ogTitle"`
	OGSite      string            `json:"ogSite"`
	Title       string            `json:"title"`
	BodyPreview string            `json:"body_preview"`
	Profile     map[string]string `json:"profile,omitempty"`
}

// Note is the strict-JSON reply to a notes call.
type Note struct {
	Invite   string `json:"invite"`
	Followup string `json:"followup"`
	Meta     string `json:"meta"`
}

var extractSystem = strings.Join([]string{
	"You are a precise extractor. Infer the HIRING company (not the aggregator) and the ROLE title from partial page signals.",
	`Return STRICT JSON only: {"company":"...","role":"..."}. No commentary.`,
	"Prefer signals in order: JSON-LD→H1→OG:title→title→body preview hints.",
	"Normalize: company as proper name, role as a clean job title.",
}, "\n")

var notesSystem = strings.Join([]string{
	"You craft brief LinkedIn outreach.",
	`Return STRICT JSON: {"invite":"...","followup":"...","meta":"llm"}. No extra text.`,
	"invite: <=280 chars. No emojis. Friendly, recruiter-appropriate.",
	"followup: 280-500 chars; specific hook from job/company if present; no emojis.",
	"Write for a generic recruiter/manager (no personal names).",
}, "\n")

// ExtractCompanyRole asks the model for the hiring company and role title.
func (c *Client) ExtractCompanyRole(ctx context.Context, snippet ExtractSnippet) (Extraction, error) {
	model := c.cfg.ExtractModel
	if model == "" {
		model = c.cfg.Model
	}
	user, err := json.MarshalIndent(snippet, "", "  ")
	if err != nil {
		return Extraction{}, fmt.Errorf("marshal snippet: %w", err)
	}
	content, err := c.chat(ctx, model, 0.2, 120, extractSystem, "Signals:\n"+string(user))
	if err != nil {
		return Extraction{}, err
	}
	var out Extraction
	if err := decodeStrictJSON(content, &out); err != nil {
		return Extraction{}, err
	}
	out.Company = strings.TrimSpace(out.Company)
	out.Role = strings.TrimSpace(out.Role)
	if out.Company == "" && out.Role == "" {
		return Extraction{}, fmt.Errorf("extract: no output")
	}
	return out, nil
}

// Notes asks the model for an invite and follow-up pair.
func (c *Client) Notes(ctx context.Context, snippet NotesSnippet) (Note, error) {
	user, err := json.MarshalIndent(snippet, "", "  ")
	if err != nil {
		return Note{}, fmt.Errorf("marshal snippet: %w", err)
	}
	content, err := c.chat(ctx, c.cfg.Model, 0.4, 380, notesSystem, "Snippet:\n"+string(user))
	if err != nil {
		return Note{}, err
	}
	var out Note
	if err := decodeStrictJSON(content, &out); err != nil {
		return Note{}, err
	}
	if out.Invite == "" && out.Followup == "" {
		return Note{}, fmt.Errorf("notes: no output")
	}
	return out, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) chat(ctx context.Context, model string, temperature float64, maxTokens int, system, user string) (string, error) {
	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat HTTP %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// decodeStrictJSON locates the first balanced {...} substring of the model
// output and unmarshals it. Models occasionally wrap the JSON in prose or
// code fences; everything outside the braces is ignored.
func decodeStrictJSON(content string, v any) error {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return fmt.Errorf("parse model JSON: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
