// Package scheduler drives the two work queues: rate-limited batch drains
// under a wall-clock budget, per-item failure isolation, and the parse →
// notes hand-off.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joblink/joblink-etl/internal/audit"
	"github.com/joblink/joblink-etl/internal/joblink"
	"github.com/joblink/joblink-etl/internal/llm"
	"github.com/joblink/joblink-etl/internal/metrics"
	"github.com/joblink/joblink-etl/internal/notes"
	"github.com/joblink/joblink-etl/internal/queue"
	"github.com/joblink/joblink-etl/internal/records"
)

const maxErrorLen = 300

// Resolver is the resolution engine surface the scheduler needs.
type Resolver interface {
	Process(ctx context.Context, url string) (joblink.Decision, joblink.FetchOutcome, error)
	Resolve(ctx context.Context, url string) (joblink.FetchOutcome, error)
}

// NotesGenerator writes the outreach pair for one snippet.
type NotesGenerator interface {
	Generate(ctx context.Context, snippet llm.NotesSnippet) (llm.Note, string)
}

// Config tunes batch sizes, throttles and the drain budget.
type Config struct {
	ParseBatch     int
	ParsePerMinute int
	NotesBatch     int
	NotesPerMinute int

	// Budget bounds one DrainAll call, safety margin already subtracted.
	Budget time.Duration

	// EventTopic is where resolution events are published, when a
	// publisher is configured.
	EventTopic string

	// SnapshotPrefix is the path prefix for stored HTML snapshots.
	SnapshotPrefix string
}

func (c *Config) applyDefaults() {
	if c.ParseBatch <= 0 {
		c.ParseBatch = 12
	}
	if c.ParsePerMinute <= 0 {
		c.ParsePerMinute = 60
	}
	if c.NotesBatch <= 0 {
		c.NotesBatch = 12
	}
	if c.NotesPerMinute <= 0 {
		c.NotesPerMinute = 60
	}
	if c.Budget <= 0 {
		c.Budget = 285 * time.Second
	}
	if c.SnapshotPrefix == "" {
		c.SnapshotPrefix = "snapshots"
	}
}

// Scheduler owns all queue mutation. Two Schedulers must not share a
// records row, but one Scheduler is safe for concurrent use: a per-queue
// mutex serializes overlapping drains on the same queue.
type Scheduler struct {
	cfg       Config
	store     queue.Store
	records   records.Store
	engine    Resolver
	notes     NotesGenerator
	snapshots joblink.BlobStore
	publisher joblink.Publisher
	log       *zap.Logger

	parseMu      sync.Mutex
	notesMu      sync.Mutex
	parseLimiter *rate.Limiter
	notesLimiter *rate.Limiter
}

// Deps carries the scheduler's collaborators. Snapshots and Publisher are
// optional.
type Deps struct {
	Store     queue.Store
	Records   records.Store
	Engine    Resolver
	Notes     NotesGenerator
	Snapshots joblink.BlobStore
	Publisher joblink.Publisher
	Logger    *zap.Logger
}

// New builds a Scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Store == nil || deps.Records == nil || deps.Engine == nil || deps.Notes == nil {
		return nil, fmt.Errorf("store, records, engine and notes are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.applyDefaults()
	return &Scheduler{
		cfg:          cfg,
		store:        deps.Store,
		records:      deps.Records,
		engine:       deps.Engine,
		notes:        deps.Notes,
		snapshots:    deps.Snapshots,
		publisher:    deps.Publisher,
		log:          deps.Logger,
		parseLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.ParsePerMinute)), 1),
		notesLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.NotesPerMinute)), 1),
	}, nil
}

// EnqueueParse queues a URL for resolution. The enqueue is idempotent per
// (owner, row); the row's status moves to "queued" only when an entry was
// actually added.
func (s *Scheduler) EnqueueParse(ctx context.Context, key records.Key, url string) (bool, error) {
	added, err := s.store.EnqueueIfAbsent(ctx, queue.Entry{
		Queue:    queue.Parse,
		OwnerKey: key.Owner,
		RowID:    key.Row,
		Payload:  url,
	})
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil
	}
	if err := s.records.SetField(ctx, key, records.FieldStatus, records.StatusQueued); err != nil {
		return true, fmt.Errorf("mark row queued: %w", err)
	}
	return true, nil
}

// EnqueueNotes queues outreach generation for a row, unless both notes are
// already present or an entry is already live.
func (s *Scheduler) EnqueueNotes(ctx context.Context, key records.Key) (bool, error) {
	invite, err := s.records.Field(ctx, key, records.FieldInvite)
	if err != nil {
		return false, err
	}
	followup, err := s.records.Field(ctx, key, records.FieldFollowup)
	if err != nil {
		return false, err
	}
	if invite != "" && followup != "" {
		return false, nil
	}
	return s.store.EnqueueIfAbsent(ctx, queue.Entry{
		Queue:    queue.Notes,
		OwnerKey: key.Owner,
		RowID:    key.Row,
		Payload:  "post-parse",
	})
}

// DrainBatch processes up to one batch of a queue and reports whether any
// work was done. Items run sequentially with the queue's throttle between
// them (never after the last); a failing item gets a terminal error status
// on its row and never aborts the batch. All processed entries are removed
// after the pass.
func (s *Scheduler) DrainBatch(ctx context.Context, name queue.Name) (bool, error) {
	mu, limiter, batch := s.queueControls(name)
	mu.Lock()
	defer mu.Unlock()

	entries, err := s.store.ListQueued(ctx, name, batch)
	if err != nil {
		return false, fmt.Errorf("list %s queue: %w", name, err)
	}
	if len(entries) == 0 {
		return false, nil
	}
	metrics.ObserveDrainPass(string(name))

	processed := make([]int64, 0, len(entries))
	for i, entry := range entries {
		if i > 0 {
			waitStart := time.Now()
			if err := limiter.Wait(ctx); err != nil {
				// Canceled mid-batch: remove what we finished, keep the rest queued.
				break
			}
			metrics.ObserveThrottleDelay(time.Since(waitStart))
		}

		key := records.Key{Owner: entry.OwnerKey, Row: entry.RowID}
		if err := s.processOne(ctx, name, entry); err != nil {
			msg := truncateErr(err)
			s.log.Warn("queue item failed",
				zap.String("queue", string(name)),
				zap.String("owner", entry.OwnerKey),
				zap.String("row", entry.RowID),
				zap.Error(err))
			if serr := s.records.SetField(ctx, key, records.FieldStatus, records.StatusError); serr != nil {
				s.log.Error("write error status", zap.Error(serr))
			}
			if serr := s.records.AppendAudit(ctx, key, audit.NewToken("error", "msg", msg)); serr != nil {
				s.log.Error("write error message", zap.Error(serr))
			}
			if serr := s.store.SetError(ctx, entry.ID, msg); serr != nil {
				s.log.Error("mark queue entry failed", zap.Error(serr))
			}
			metrics.ObserveQueueItem(string(name), "error")
		} else {
			metrics.ObserveQueueItem(string(name), "ok")
		}
		processed = append(processed, entry.ID)
	}

	if err := s.store.Remove(ctx, processed); err != nil {
		return true, fmt.Errorf("remove processed entries: %w", err)
	}
	if depth, err := s.store.Depth(ctx, name); err == nil {
		metrics.SetQueueDepth(string(name), depth)
	}
	return len(processed) > 0, nil
}

// DrainAll alternates parse and notes passes until neither queue did work
// in a full round, or the wall-clock budget runs out. The budget is only
// checked between passes, never inside one item.
func (s *Scheduler) DrainAll(ctx context.Context) error {
	start := time.Now()
	for {
		parseDid, err := s.DrainBatch(ctx, queue.Parse)
		if err != nil {
			return err
		}
		if time.Since(start) > s.cfg.Budget {
			s.log.Info("drain budget exhausted", zap.Duration("elapsed", time.Since(start)))
			return nil
		}
		notesDid, err := s.DrainBatch(ctx, queue.Notes)
		if err != nil {
			return err
		}
		if !parseDid && !notesDid {
			return nil
		}
		if time.Since(start) > s.cfg.Budget {
			s.log.Info("drain budget exhausted", zap.Duration("elapsed", time.Since(start)))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Scheduler) queueControls(name queue.Name) (*sync.Mutex, *rate.Limiter, int) {
	if name == queue.Notes {
		return &s.notesMu, s.notesLimiter, s.cfg.NotesBatch
	}
	return &s.parseMu, s.parseLimiter, s.cfg.ParseBatch
}

// processOne dispatches an entry and converts panics into item errors.
func (s *Scheduler) processOne(ctx context.Context, name queue.Name, entry queue.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s/%s: %v", entry.OwnerKey, entry.RowID, r)
		}
	}()
	if name == queue.Notes {
		return s.processNotes(ctx, entry)
	}
	return s.processParse(ctx, entry)
}

func (s *Scheduler) processParse(ctx context.Context, entry queue.Entry) error {
	key := records.Key{Owner: entry.OwnerKey, Row: entry.RowID}
	url := entry.Payload
	if url == "" {
		var err error
		url, err = s.records.Field(ctx, key, records.FieldLink)
		if err != nil {
			return fmt.Errorf("read link: %w", err)
		}
	}
	if url == "" {
		return fmt.Errorf("row %s/%s has no link", entry.OwnerKey, entry.RowID)
	}

	decision, outcome, err := s.engine.Process(ctx, url)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", url, err)
	}

	if err := s.records.SetField(ctx, key, records.FieldCanonical, decision.CanonicalURL); err != nil {
		return fmt.Errorf("write canonical: %w", err)
	}
	if err := s.records.SetField(ctx, key, records.FieldCompany, decision.Company); err != nil {
		return fmt.Errorf("write company: %w", err)
	}
	if err := s.records.SetField(ctx, key, records.FieldRole, decision.Role); err != nil {
		return fmt.Errorf("write role: %w", err)
	}

	parseToken := audit.NewToken("parse",
		"provider", outcome.Provider,
		"signals", decision.Signals(),
		"conf", fmt.Sprintf("%.2f", decision.Confidence))
	if err := s.records.AppendAudit(ctx, key, parseToken); err != nil {
		return fmt.Errorf("append parse token: %w", err)
	}
	for _, tok := range decision.AuditTokens {
		if err := s.records.AppendAudit(ctx, key, tok); err != nil {
			return fmt.Errorf("append %s token: %w", tok.Kind, err)
		}
	}

	s.snapshotHTML(ctx, key, outcome)
	s.publishResult(ctx, key, url, decision, outcome)

	if _, err := s.EnqueueNotes(ctx, key); err != nil {
		return fmt.Errorf("enqueue notes: %w", err)
	}
	if err := s.records.SetField(ctx, key, records.FieldStatus, records.StatusOK); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

func (s *Scheduler) processNotes(ctx context.Context, entry queue.Entry) error {
	key := records.Key{Owner: entry.OwnerKey, Row: entry.RowID}

	// Idempotency before heavy work: both notes might have appeared since
	// this job was queued.
	invite, err := s.records.Field(ctx, key, records.FieldInvite)
	if err != nil {
		return err
	}
	followup, err := s.records.Field(ctx, key, records.FieldFollowup)
	if err != nil {
		return err
	}
	if invite != "" && followup != "" {
		return nil
	}

	url, err := s.records.Field(ctx, key, records.FieldLink)
	if err != nil {
		return fmt.Errorf("read link: %w", err)
	}
	if url == "" {
		return fmt.Errorf("row %s/%s has no link", entry.OwnerKey, entry.RowID)
	}

	// Fetch again for a fresh snippet; company and role stay as parsed.
	outcome, err := s.engine.Resolve(ctx, url)
	if err != nil {
		return fmt.Errorf("refetch %s: %w", url, err)
	}
	company, err := s.records.Field(ctx, key, records.FieldCompany)
	if err != nil {
		return err
	}
	role, err := s.records.Field(ctx, key, records.FieldRole)
	if err != nil {
		return err
	}
	profile, err := s.records.Profile(ctx)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}

	finalURL := outcome.FinalURL
	if finalURL == "" {
		finalURL = url
	}
	snippet := notes.BuildSnippet(finalURL, outcome.HTML, company, role, profile)
	note, mode := s.notes.Generate(ctx, snippet)

	if err := s.records.SetField(ctx, key, records.FieldInvite, note.Invite); err != nil {
		return fmt.Errorf("write invite: %w", err)
	}
	if err := s.records.SetField(ctx, key, records.FieldFollowup, note.Followup); err != nil {
		return fmt.Errorf("write followup: %w", err)
	}
	if err := s.records.AppendAudit(ctx, key, audit.NewToken("notes", "mode", mode)); err != nil {
		return fmt.Errorf("append notes token: %w", err)
	}
	return nil
}

// snapshotHTML stores the fetched page for provenance. Best effort.
func (s *Scheduler) snapshotHTML(ctx context.Context, key records.Key, outcome joblink.FetchOutcome) {
	if s.snapshots == nil || outcome.HTML == "" {
		return
	}
	uri, err := s.snapshots.PutObject(ctx, snapshotPath(s.cfg.SnapshotPrefix, outcome), "text/html", []byte(outcome.HTML))
	if err != nil {
		s.log.Warn("store snapshot", zap.String("row", key.Row), zap.Error(err))
		return
	}
	s.log.Debug("stored snapshot", zap.String("uri", uri))
}

// publishResult emits the resolution event. Best effort.
func (s *Scheduler) publishResult(ctx context.Context, key records.Key, url string, d joblink.Decision, out joblink.FetchOutcome) {
	if s.publisher == nil {
		return
	}
	result := joblink.Result{
		OwnerKey:  key.Owner,
		RowID:     key.Row,
		URL:       url,
		Canonical: d.CanonicalURL,
		Company:   d.Company,
		Role:      d.Role,
		Provider:  out.Provider,
		Signals:   d.Signals(),
		Conf:      d.Confidence,
		At:        time.Now().UTC(),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.EventTopic, result); err != nil {
		s.log.Warn("publish result", zap.String("row", key.Row), zap.Error(err))
	}
}

func snapshotPath(prefix string, out joblink.FetchOutcome) string {
	sum := sha256.Sum256([]byte(out.HTML))
	return prefix + "/" + hex.EncodeToString(sum[:]) + ".html"
}

func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
