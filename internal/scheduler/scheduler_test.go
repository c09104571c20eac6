package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joblink/joblink-etl/internal/joblink"
	"github.com/joblink/joblink-etl/internal/metrics"
	"github.com/joblink/joblink-etl/internal/notes"
	"github.com/joblink/joblink-etl/internal/publisher"
	"github.com/joblink/joblink-etl/internal/queue"
	"github.com/joblink/joblink-etl/internal/records"
	"github.com/joblink/joblink-etl/internal/snapshot"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type stubEngine struct {
	decisions map[string]joblink.Decision
	failures  map[string]error
	panics    map[string]bool
	processed []string
}

func (s *stubEngine) Process(_ context.Context, url string) (joblink.Decision, joblink.FetchOutcome, error) {
	s.processed = append(s.processed, url)
	if s.panics[url] {
		panic("resolver blew up on " + url)
	}
	if err, ok := s.failures[url]; ok {
		return joblink.Decision{}, joblink.FetchOutcome{}, err
	}
	d, ok := s.decisions[url]
	if !ok {
		d = joblink.Decision{
			Company:      "Acme",
			Role:         "Senior Engineer",
			CanonicalURL: url,
			Confidence:   1.0,
			SignalPath:   []string{"jsonld-org", "jsonld-title"},
		}
	}
	return d, joblink.FetchOutcome{
		Status:   200,
		FinalURL: url,
		HTML:     "<html><h1>Senior Engineer</h1></html>",
		Provider: joblink.ProviderDirect,
	}, nil
}

func (s *stubEngine) Resolve(_ context.Context, url string) (joblink.FetchOutcome, error) {
	if err, ok := s.failures[url]; ok {
		return joblink.FetchOutcome{}, err
	}
	return joblink.FetchOutcome{
		Status:   200,
		FinalURL: url,
		HTML:     "<html><h1>Senior Engineer</h1></html>",
		Provider: joblink.ProviderDirect,
	}, nil
}

type fixture struct {
	sched   *Scheduler
	store   *queue.MemoryStore
	records *records.Memory
	engine  *stubEngine
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.ParsePerMinute == 0 {
		cfg.ParsePerMinute = 60000
	}
	if cfg.NotesPerMinute == 0 {
		cfg.NotesPerMinute = 60000
	}
	store := queue.NewMemoryStore()
	recs := records.NewMemory()
	engine := &stubEngine{}
	gen := notes.NewGenerator(nil, zap.NewNop())
	sched, err := New(cfg, Deps{
		Store:   store,
		Records: recs,
		Engine:  engine,
		Notes:   gen,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	return &fixture{sched: sched, store: store, records: recs, engine: engine}
}

func TestEnqueueParseIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	key := records.Key{Owner: "board-a", Row: "7"}

	added, err := f.sched.EnqueueParse(ctx, key, "https://example.com/job")
	require.NoError(t, err)
	require.True(t, added)

	added, err = f.sched.EnqueueParse(ctx, key, "https://example.com/job")
	require.NoError(t, err)
	require.False(t, added)

	depth, err := f.store.Depth(ctx, queue.Parse)
	require.NoError(t, err)
	require.Equal(t, 1, depth)

	status, err := f.records.Field(ctx, key, records.FieldStatus)
	require.NoError(t, err)
	require.Equal(t, records.StatusQueued, status)
}

func TestDrainBatchParseSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	key := records.Key{Owner: "board-a", Row: "7"}

	_, err := f.sched.EnqueueParse(ctx, key, "https://example.com/job")
	require.NoError(t, err)

	did, err := f.sched.DrainBatch(ctx, queue.Parse)
	require.NoError(t, err)
	require.True(t, did)

	company, _ := f.records.Field(ctx, key, records.FieldCompany)
	require.Equal(t, "Acme", company)
	role, _ := f.records.Field(ctx, key, records.FieldRole)
	require.Equal(t, "Senior Engineer", role)
	status, _ := f.records.Field(ctx, key, records.FieldStatus)
	require.Equal(t, records.StatusOK, status)

	source, _ := f.records.Field(ctx, key, records.FieldSource)
	require.Contains(t, source, "parse:{provider=direct, signals=jsonld-org+jsonld-title, conf=1.00}")

	// Parse success spawns a notes job; the parse entry is gone.
	depth, _ := f.store.Depth(ctx, queue.Parse)
	require.Equal(t, 0, depth)
	depth, _ = f.store.Depth(ctx, queue.Notes)
	require.Equal(t, 1, depth)
}

func TestDrainBatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.engine.failures = map[string]error{
		"https://bad.example.com": fmt.Errorf("all fetch tiers failed"),
	}
	good := records.Key{Owner: "board-a", Row: "1"}
	bad := records.Key{Owner: "board-a", Row: "2"}

	_, err := f.sched.EnqueueParse(ctx, bad, "https://bad.example.com")
	require.NoError(t, err)
	_, err = f.sched.EnqueueParse(ctx, good, "https://good.example.com")
	require.NoError(t, err)

	did, err := f.sched.DrainBatch(ctx, queue.Parse)
	require.NoError(t, err)
	require.True(t, did)

	status, _ := f.records.Field(ctx, bad, records.FieldStatus)
	require.Equal(t, records.StatusError, status)
	source, _ := f.records.Field(ctx, bad, records.FieldSource)
	require.Contains(t, source, "all fetch tiers failed")

	status, _ = f.records.Field(ctx, good, records.FieldStatus)
	require.Equal(t, records.StatusOK, status)

	// Both entries are removed after the pass, success or error.
	depth, _ := f.store.Depth(ctx, queue.Parse)
	require.Equal(t, 0, depth)
}

func TestDrainBatchIsolatesPanics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.engine.panics = map[string]bool{"https://boom.example.com": true}
	boom := records.Key{Owner: "board-a", Row: "3"}
	good := records.Key{Owner: "board-a", Row: "4"}

	_, err := f.sched.EnqueueParse(ctx, boom, "https://boom.example.com")
	require.NoError(t, err)
	_, err = f.sched.EnqueueParse(ctx, good, "https://good.example.com")
	require.NoError(t, err)

	did, err := f.sched.DrainBatch(ctx, queue.Parse)
	require.NoError(t, err)
	require.True(t, did)

	status, _ := f.records.Field(ctx, boom, records.FieldStatus)
	require.Equal(t, records.StatusError, status)
	status, _ = f.records.Field(ctx, good, records.FieldStatus)
	require.Equal(t, records.StatusOK, status)
}

func TestEnqueueNotesSkippedWhenComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	key := records.Key{Owner: "board-a", Row: "7"}

	require.NoError(t, f.records.SetField(ctx, key, records.FieldInvite, "hi"))
	require.NoError(t, f.records.SetField(ctx, key, records.FieldFollowup, "thanks"))

	added, err := f.sched.EnqueueNotes(ctx, key)
	require.NoError(t, err)
	require.False(t, added)
}

func TestDrainBatchNotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	key := records.Key{Owner: "board-a", Row: "7"}

	require.NoError(t, f.records.SetField(ctx, key, records.FieldLink, "https://example.com/job"))
	require.NoError(t, f.records.SetField(ctx, key, records.FieldCompany, "Acme"))
	require.NoError(t, f.records.SetField(ctx, key, records.FieldRole, "Senior Engineer"))
	f.records.SetProfile(map[string]string{"top skills": "Go, Postgres"})

	added, err := f.sched.EnqueueNotes(ctx, key)
	require.NoError(t, err)
	require.True(t, added)

	did, err := f.sched.DrainBatch(ctx, queue.Notes)
	require.NoError(t, err)
	require.True(t, did)

	invite, _ := f.records.Field(ctx, key, records.FieldInvite)
	require.Contains(t, invite, "Senior Engineer at Acme")
	followup, _ := f.records.Field(ctx, key, records.FieldFollowup)
	require.Contains(t, followup, "Go, Postgres")
	source, _ := f.records.Field(ctx, key, records.FieldSource)
	require.Contains(t, source, "notes:{mode=template}")
}

func TestDrainAllRunsParseThenNotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	key := records.Key{Owner: "board-a", Row: "7"}

	require.NoError(t, f.records.SetField(ctx, key, records.FieldLink, "https://example.com/job"))
	_, err := f.sched.EnqueueParse(ctx, key, "https://example.com/job")
	require.NoError(t, err)

	require.NoError(t, f.sched.DrainAll(ctx))

	// One DrainAll covers the parse job and the notes job it spawned.
	invite, _ := f.records.Field(ctx, key, records.FieldInvite)
	require.NotEmpty(t, invite)
	for _, name := range []queue.Name{queue.Parse, queue.Notes} {
		depth, err := f.store.Depth(ctx, name)
		require.NoError(t, err)
		require.Equal(t, 0, depth, string(name))
	}
}

func TestDrainAllTerminatesWhenIdle(t *testing.T) {
	f := newFixture(t, Config{})
	done := make(chan error, 1)
	go func() { done <- f.sched.DrainAll(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("DrainAll did not terminate on idle queues")
	}
}

func TestDrainAllHonorsBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Budget: time.Nanosecond})
	key := records.Key{Owner: "board-a", Row: "7"}
	_, err := f.sched.EnqueueParse(ctx, key, "https://example.com/job")
	require.NoError(t, err)

	require.NoError(t, f.sched.DrainAll(ctx))

	// The first parse pass ran, but the budget expired before the notes
	// pass: the spawned notes job is still queued.
	depth, _ := f.store.Depth(ctx, queue.Notes)
	require.Equal(t, 1, depth)
}

func TestParseStoresSnapshotAndPublishesEvent(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemoryStore()
	recs := records.NewMemory()
	engine := &stubEngine{}
	snaps := snapshot.NewMemoryStore()
	pub := publisher.NewMemory()
	sched, err := New(
		Config{ParsePerMinute: 60000, NotesPerMinute: 60000, EventTopic: "joblink-results", SnapshotPrefix: "pages"},
		Deps{
			Store:     store,
			Records:   recs,
			Engine:    engine,
			Notes:     notes.NewGenerator(nil, zap.NewNop()),
			Snapshots: snaps,
			Publisher: pub,
			Logger:    zap.NewNop(),
		},
	)
	require.NoError(t, err)

	key := records.Key{Owner: "board-a", Row: "3"}
	_, err = sched.EnqueueParse(ctx, key, "https://jobs.lever.co/acme/1")
	require.NoError(t, err)
	_, err = sched.DrainBatch(ctx, queue.Parse)
	require.NoError(t, err)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, "joblink-results", events[0].Topic)
	var result joblink.Result
	require.NoError(t, json.Unmarshal(events[0].Payload, &result))
	require.Equal(t, "Acme", result.Company)
	require.Equal(t, "board-a", result.OwnerKey)
	require.Equal(t, joblink.ProviderDirect, result.Provider)

	html := []byte("<html><h1>Senior Engineer</h1></html>")
	sum := sha256.Sum256(html)
	stored, ok := snaps.Get("pages/" + hex.EncodeToString(sum[:]) + ".html")
	require.True(t, ok)
	require.Equal(t, html, stored)
}
