package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Durable file layout.
	ContentDir          string        `envconfig:"CONTENT_DIR" default:"content/posts"`
	QueueFile           string        `envconfig:"QUEUE_FILE" default:"data/publish_queue.json"`
	StateFile           string        `envconfig:"PUBLISH_STATE_FILE" default:"data/publish_state.json"`
	SchedulerConfigFile string        `envconfig:"SCHEDULER_CONFIG_FILE" default:"data/scheduler_config.json"`
	SignalSnapshotFile  string        `envconfig:"SIGNAL_SNAPSHOT_FILE" default:"data/signals_snapshot.json"`
	ReportsDir          string        `envconfig:"REPORTS_DIR" default:"data/reports"`
	LockFile            string        `envconfig:"LOCK_FILE" default:"data/.pubgate.lock"`
	LockWait            time.Duration `envconfig:"LOCK_WAIT" default:"30s"`
	LexiconFile         string        `envconfig:"LEXICON_FILE" default:""`

	// Collaborators.
	CollectorURLs    string        `envconfig:"COLLECTOR_URLS" default:""`
	CollectorTimeout time.Duration `envconfig:"COLLECTOR_TIMEOUT" default:"15s"`
	GeneratorURL     string        `envconfig:"GENERATOR_URL" default:""`
	GeneratorTimeout time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"90s"`
	CandidatesDir    string        `envconfig:"CANDIDATES_DIR" default:"data/candidates"`

	// Admission.
	AdmissionTarget     int     `envconfig:"ADMISSION_TARGET" default:"6"`
	AdmissionTopN       int     `envconfig:"ADMISSION_TOP_N" default:"10"`
	MinTopicScore       float64 `envconfig:"MIN_TOPIC_SCORE" default:"15"`
	ValidationThreshold int     `envconfig:"VALIDATION_THRESHOLD" default:"2"`
	SimilarityCeiling   float64 `envconfig:"SIMILARITY_CEILING" default:"0.82"`
	SimilarityTopK      int     `envconfig:"SIMILARITY_TOP_K" default:"5"`
	RefreshCorpus       bool    `envconfig:"REFRESH_CORPUS_PER_CANDIDATE" default:"true"`
	QualityGate         float64 `envconfig:"QUALITY_GATE" default:"85"`
	ShortFormCategories string  `envconfig:"SHORT_FORM_CATEGORIES" default:"news,bulletin,brief,alert"`
	ContentLanguage     string  `envconfig:"CONTENT_LANGUAGE" default:""`
	SiteHosts           string  `envconfig:"SITE_HOSTS" default:""`
	RandomSeed          int64   `envconfig:"RANDOM_SEED" default:"0"`

	// Optional infrastructure.
	DatabaseURL  string        `envconfig:"DATABASE_URL" default:""`
	DBMinConns   int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns   int32         `envconfig:"DB_MAX_CONNS" default:"4"`
	RedisURL     string        `envconfig:"REDIS_URL" default:""`
	LeaseTTL     time.Duration `envconfig:"LEASE_TTL" default:"10m"`
	KafkaBrokers string        `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic   string        `envconfig:"KAFKA_REPORT_TOPIC" default:"pubgate.reports"`

	// Daemon triggers.
	AdmitCron   string `envconfig:"ADMIT_CRON" default:"0 */3 * * *"`
	PublishCron string `envconfig:"PUBLISH_CRON" default:"*/15 * * * *"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	required := map[string]string{
		"CONTENT_DIR":           c.ContentDir,
		"QUEUE_FILE":            c.QueueFile,
		"PUBLISH_STATE_FILE":    c.StateFile,
		"SCHEDULER_CONFIG_FILE": c.SchedulerConfigFile,
		"SIGNAL_SNAPSHOT_FILE":  c.SignalSnapshotFile,
		"REPORTS_DIR":           c.ReportsDir,
		"LOCK_FILE":             c.LockFile,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if c.AdmissionTarget < 1 {
		return fmt.Errorf("ADMISSION_TARGET must be >= 1")
	}
	if c.AdmissionTopN < 1 {
		return fmt.Errorf("ADMISSION_TOP_N must be >= 1")
	}
	if c.MinTopicScore < 0 || c.MinTopicScore > 100 {
		return fmt.Errorf("MIN_TOPIC_SCORE must be within [0,100]")
	}
	if c.ValidationThreshold < 1 {
		return fmt.Errorf("VALIDATION_THRESHOLD must be >= 1")
	}
	if c.SimilarityCeiling <= 0 || c.SimilarityCeiling > 1 {
		return fmt.Errorf("SIMILARITY_CEILING must be within (0,1]")
	}
	if c.SimilarityTopK < 1 {
		return fmt.Errorf("SIMILARITY_TOP_K must be >= 1")
	}
	if c.QualityGate <= 0 || c.QualityGate > 100 {
		return fmt.Errorf("QUALITY_GATE must be within (0,100]")
	}
	if c.LockWait < 0 {
		return fmt.Errorf("LOCK_WAIT must be >= 0")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.RedisURL) != "" && c.LeaseTTL < time.Second {
		return fmt.Errorf("LEASE_TTL must be >= 1s when REDIS_URL is set")
	}
	if strings.TrimSpace(c.KafkaBrokers) != "" && strings.TrimSpace(c.KafkaTopic) == "" {
		return fmt.Errorf("KAFKA_REPORT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// CollectorURLList returns the configured collector endpoints.
func (c *Config) CollectorURLList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CollectorURLs, false)
}

// ShortFormCategoryList returns lowercased categories assessed with the short-form profile.
func (c *Config) ShortFormCategoryList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.ShortFormCategories, true)
}

// SiteHostList returns lowercased hostnames whose absolute links count as internal.
func (c *Config) SiteHostList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.SiteHosts, true)
}

func (c *Config) KafkaBrokerList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers, false)
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins, false)
}

func splitList(raw string, lower bool) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
