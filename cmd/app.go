package cmd

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/joblink/joblink-etl/internal/api"
	"github.com/joblink/joblink-etl/internal/config"
	"github.com/joblink/joblink-etl/internal/fetch"
	"github.com/joblink/joblink-etl/internal/hosts"
	"github.com/joblink/joblink-etl/internal/joblink"
	"github.com/joblink/joblink-etl/internal/llm"
	"github.com/joblink/joblink-etl/internal/logging"
	"github.com/joblink/joblink-etl/internal/metrics"
	"github.com/joblink/joblink-etl/internal/notes"
	"github.com/joblink/joblink-etl/internal/publisher"
	"github.com/joblink/joblink-etl/internal/queue"
	"github.com/joblink/joblink-etl/internal/records"
	"github.com/joblink/joblink-etl/internal/resolve"
	"github.com/joblink/joblink-etl/internal/scheduler"
	"github.com/joblink/joblink-etl/internal/snapshot"
)

// app holds every wired service for the lifetime of one command.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	queues queue.Store
	rows   *records.Memory
	engine *resolve.Engine
	sched  *scheduler.Scheduler
	server *api.Server

	chromedp *fetch.ChromedpRenderer
	pub      joblink.Publisher
}

// buildApp loads config and wires the full pipeline. Every optional tier
// (renderer, LLM, snapshots, publisher) stays nil when not configured.
func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	a := &app{cfg: cfg, log: logger}

	direct := fetch.NewDirect(fetch.DirectConfig{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})

	var renderer joblink.Renderer
	switch cfg.Renderer.Provider {
	case "remote":
		remote, err := fetch.NewRemoteRenderer(fetch.RemoteRendererConfig{
			BaseURL:   cfg.Renderer.URL,
			Key:       cfg.Renderer.Key,
			Wait:      cfg.Renderer.Wait,
			TimeoutMs: cfg.Renderer.TimeoutMs,
		})
		if err != nil {
			return nil, fmt.Errorf("init remote renderer: %w", err)
		}
		renderer = remote
	case "chromedp":
		local, err := fetch.NewChromedpRenderer(fetch.ChromedpConfig{
			MaxParallel:       cfg.Renderer.ChromeParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Renderer.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("chromedp renderer init failed", zap.Error(err))
		} else {
			a.chromedp = local
			renderer = local
		}
	}

	llmClient := llm.New(llm.Config{
		Endpoint:     cfg.LLM.Endpoint,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		ExtractModel: cfg.LLM.ExtractModel,
	})

	engineDeps := resolve.Deps{
		API:      fetch.NewATSAPI(),
		Direct:   direct,
		Renderer: renderer,
		Classify: hosts.New(),
		Logger:   logger.Named("resolve"),
	}
	if llmClient != nil && cfg.LLM.ExtractEnabled {
		engineDeps.Extractor = llmClient
	}
	engine, err := resolve.New(engineDeps)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	a.engine = engine

	a.queues, err = buildQueueStore(ctx, cfg.Queue)
	if err != nil {
		return nil, err
	}
	a.rows = records.NewMemory()
	if len(cfg.Profile) > 0 {
		a.rows.SetProfile(cfg.Profile)
	}

	var notesClient notes.Client
	if llmClient != nil && cfg.LLM.NotesEnabled {
		notesClient = llmClient
	}
	generator := notes.NewGenerator(notesClient, logger.Named("notes"))

	snapshots, err := buildSnapshotStore(ctx, cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	a.pub, err = buildPublisher(ctx, cfg.Publisher)
	if err != nil {
		return nil, err
	}

	a.sched, err = scheduler.New(
		scheduler.Config{
			ParseBatch:     cfg.Queue.ParseBatch,
			ParsePerMinute: cfg.Queue.ParsePerMinute,
			NotesBatch:     cfg.Queue.NotesBatch,
			NotesPerMinute: cfg.Queue.NotesPerMinute,
			Budget:         cfg.DrainBudget(),
			EventTopic:     cfg.Publisher.Topic,
			SnapshotPrefix: cfg.Snapshot.Prefix,
		},
		scheduler.Deps{
			Store:     a.queues,
			Records:   a.rows,
			Engine:    engine,
			Notes:     generator,
			Snapshots: snapshots,
			Publisher: a.pub,
			Logger:    logger.Named("scheduler"),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	a.server = api.NewServer(a.sched, engine, a.queues, a.rows, logger.Named("api"))
	return a, nil
}

func buildQueueStore(ctx context.Context, cfg config.QueueConfig) (queue.Store, error) {
	switch cfg.Provider {
	case "memory":
		return queue.NewMemoryStore(), nil
	case "sqlite":
		store, err := queue.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite queue: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := queue.NewPostgresStore(ctx, queue.PostgresStoreConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, fmt.Errorf("init postgres queue: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown queue provider: %s", cfg.Provider)
	}
}

func buildSnapshotStore(ctx context.Context, cfg config.SnapshotConfig) (joblink.BlobStore, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return snapshot.NewMemoryStore(), nil
	case "local":
		store, err := snapshot.NewLocalStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("init local snapshot store: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := snapshot.NewGCSStore(client, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown snapshot provider: %s", cfg.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.PublisherConfig) (joblink.Publisher, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return publisher.NewMemory(), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pub, err := publisher.NewPubSub(client)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", cfg.Provider)
	}
}

// close releases everything buildApp opened, in reverse order.
func (a *app) close() {
	if p, ok := a.pub.(*publisher.PubSub); ok && p != nil {
		if err := p.Close(); err != nil {
			a.log.Warn("publisher close", zap.Error(err))
		}
	}
	if a.chromedp != nil {
		a.chromedp.Close()
	}
	if a.queues != nil {
		if err := a.queues.Close(); err != nil {
			a.log.Warn("queue store close", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
