// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. It is
// constructed once at process start and passed by reference to every
// component that needs it; nothing reads viper globals directly.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Publisher PublisherConfig `mapstructure:"publisher"`

	// Profile feeds the outreach note templates, e.g. "one-line hook"
	// and "top skills".
	Profile map[string]string `mapstructure:"profile"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FetchConfig governs the direct HTTP fetch tier.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RendererConfig selects and configures the rendered-HTML tier.
// Provider is one of "none", "remote" (HTTP render service) or "chromedp"
// (local headless browser).
type RendererConfig struct {
	Provider       string `mapstructure:"provider"`
	URL            string `mapstructure:"url"`
	Key            string `mapstructure:"key"`
	Wait           string `mapstructure:"wait"`
	TimeoutMs      int    `mapstructure:"timeout_ms"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	ChromeParallel int    `mapstructure:"chrome_parallel"`
}

// LLMConfig configures the chat-completions escalation endpoint.
type LLMConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	ExtractModel   string `mapstructure:"extract_model"`
	ExtractEnabled bool   `mapstructure:"extract_enabled"`
	NotesEnabled   bool   `mapstructure:"notes_enabled"`
}

// QueueConfig controls queue persistence and drain pacing.
type QueueConfig struct {
	Provider         string `mapstructure:"provider"`
	SQLitePath       string `mapstructure:"sqlite_path"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	ParseBatch       int    `mapstructure:"parse_batch"`
	ParsePerMinute   int    `mapstructure:"parse_per_minute"`
	NotesBatch       int    `mapstructure:"notes_batch"`
	NotesPerMinute   int    `mapstructure:"notes_per_minute"`
	BudgetSeconds    int    `mapstructure:"budget_seconds"`
	SafetyMarginSecs int    `mapstructure:"safety_margin_seconds"`
}

// SnapshotConfig selects the optional HTML snapshot store.
type SnapshotConfig struct {
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PublisherConfig selects the optional result event publisher.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120 Safari/537.36")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("renderer.provider", "none")
	v.SetDefault("renderer.wait", "domcontentloaded")
	v.SetDefault("renderer.timeout_ms", 12000)
	v.SetDefault("renderer.nav_timeout_seconds", 25)
	v.SetDefault("renderer.chrome_parallel", 1)
	v.SetDefault("llm.model", "llama-3.1-8b-instant")
	v.SetDefault("llm.extract_enabled", true)
	v.SetDefault("llm.notes_enabled", true)
	v.SetDefault("queue.provider", "sqlite")
	v.SetDefault("queue.sqlite_path", "joblink.db")
	v.SetDefault("queue.parse_batch", 12)
	v.SetDefault("queue.parse_per_minute", 60)
	v.SetDefault("queue.notes_batch", 12)
	v.SetDefault("queue.notes_per_minute", 60)
	v.SetDefault("queue.budget_seconds", 300)
	v.SetDefault("queue.safety_margin_seconds", 15)
	v.SetDefault("snapshot.provider", "none")
	v.SetDefault("snapshot.prefix", "pages")
	v.SetDefault("publisher.provider", "none")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	switch c.Renderer.Provider {
	case "none", "chromedp":
	case "remote":
		if c.Renderer.URL == "" {
			return fmt.Errorf("renderer.url must be set when renderer.provider is remote")
		}
	default:
		return fmt.Errorf("unknown renderer provider: %s", c.Renderer.Provider)
	}
	switch c.Queue.Provider {
	case "memory":
	case "sqlite":
		if c.Queue.SQLitePath == "" {
			return fmt.Errorf("queue.sqlite_path must be set when queue.provider is sqlite")
		}
	case "postgres":
		if c.Queue.PostgresDSN == "" {
			return fmt.Errorf("queue.postgres_dsn must be set when queue.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown queue provider: %s", c.Queue.Provider)
	}
	if c.Queue.ParseBatch <= 0 || c.Queue.NotesBatch <= 0 {
		return fmt.Errorf("queue batch sizes must be > 0")
	}
	if c.Queue.BudgetSeconds <= c.Queue.SafetyMarginSecs {
		return fmt.Errorf("queue.budget_seconds must exceed queue.safety_margin_seconds")
	}
	if c.Renderer.TimeoutMs > 20000 {
		return fmt.Errorf("renderer.timeout_ms must be <= 20000")
	}
	return nil
}

// DrainBudget returns the wall-clock budget for one DrainAll run, with the
// safety margin already subtracted.
func (c Config) DrainBudget() time.Duration {
	return time.Duration(c.Queue.BudgetSeconds-c.Queue.SafetyMarginSecs) * time.Second
}
