// Package joblink defines core types shared across subsystems.
package joblink

import (
	"time"

	"github.com/joblink/joblink-etl/internal/audit"
)

// Provider tags identify which fetch tier produced an outcome.
const (
	ProviderGreenhouseAPI = "gh-api"
	ProviderLeverAPI      = "lever-api"
	ProviderDirect        = "direct"
	ProviderRenderer      = "renderer"

	// UnwrappedSuffix is appended to the provider tag when an aggregator
	// page was unwrapped to its underlying ATS posting.
	UnwrappedSuffix = "-unwrapped"
)

// FetchOutcome is the result of one fetch attempt. It is produced fresh per
// attempt, never persisted, and owned by the call that created it.
type FetchOutcome struct {
	Status     int
	FinalURL   string
	HTML       string
	Provider   string
	APICompany string
	APIRole    string
	Duration   time.Duration
}

// OK reports whether the outcome carries a non-error HTTP status.
func (o FetchOutcome) OK() bool {
	return o.Status > 0 && o.Status < 400
}

// Decision is the scored extraction produced for one URL.
type Decision struct {
	Company      string
	Role         string
	CanonicalURL string
	Confidence   float64
	SignalPath   []string
	AuditTokens  []audit.Token
}

// Signals returns the signal path joined for audit display, defaulting to
// "heuristic" when no heuristic fired.
func (d Decision) Signals() string {
	if len(d.SignalPath) == 0 {
		return "heuristic"
	}
	out := d.SignalPath[0]
	for _, s := range d.SignalPath[1:] {
		out += "+" + s
	}
	return out
}

// Result pairs the fetch outcome with the decision for downstream consumers
// (event publisher, API responses).
type Result struct {
	OwnerKey  string    `json:"owner_key,omitempty"`
	RowID     string    `json:"row_id,omitempty"`
	URL       string    `json:"url"`
	Canonical string    `json:"canonical"`
	Company   string    `json:"company"`
	Role      string    `json:"role"`
	Provider  string    `json:"provider"`
	Signals   string    `json:"signals"`
	Conf      float64   `json:"conf"`
	At        time.Time `json:"at"`
}
