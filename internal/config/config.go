package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/spf13/viper"
)

// ConflictPolicy decides what the batch executor does with a file that already exists.
type ConflictPolicy string

// Conflict policies.
const (
	ConflictSkip    ConflictPolicy = "skip"
	ConflictReplace ConflictPolicy = "replace"
	ConflictAsk     ConflictPolicy = "ask"
)

// Config holds everything the ingestion pipeline reads from viper.
type Config struct {
	BaseURL             string
	Token               string
	DatabasePath        string
	MetricsTextfile     string
	DefaultMaterialType model.MaterialType
	DefaultAudience     model.Audience
	OnConflict          ConflictPolicy
	ClassifyTimeout     time.Duration
	MaxAnalyzeBytes     int64
	Threshold           float64
	RequestsPerMinute   int
}

// SetDefaults registers default values for every key Load reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("classification.max_analyze_mb", 100)
	v.SetDefault("classification.timeout", 2*time.Minute)
	v.SetDefault("classification.requests_per_minute", 60)
	v.SetDefault("upload.threshold", 0.8)
	v.SetDefault("upload.on_conflict", string(ConflictSkip))
	v.SetDefault("database.path", "$HOME/.local/share/matflow/matflow.db")
	v.SetDefault("defaults.material_type", string(model.MaterialProductBrief))
	v.SetDefault("defaults.audience", string(model.AudienceInternal))
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		BaseURL:             strings.TrimRight(v.GetString("api.base_url"), "/"),
		Token:               v.GetString("api.token"),
		DatabasePath:        ExpandPath(v.GetString("database.path")),
		MetricsTextfile:     ExpandPath(v.GetString("metrics.textfile")),
		DefaultMaterialType: model.MaterialType(v.GetString("defaults.material_type")),
		DefaultAudience:     model.Audience(v.GetString("defaults.audience")),
		OnConflict:          ConflictPolicy(strings.ToLower(v.GetString("upload.on_conflict"))),
		ClassifyTimeout:     v.GetDuration("classification.timeout"),
		MaxAnalyzeBytes:     v.GetInt64("classification.max_analyze_mb") << 20,
		Threshold:           v.GetFloat64("upload.threshold"),
		RequestsPerMinute:   v.GetInt("classification.requests_per_minute"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url", common.ErrMissingConfig)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("%w: api.base_url must be an http(s) URL", common.ErrInvalidConfig)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: upload.threshold must be within [0,1], got %v", common.ErrInvalidConfig, c.Threshold)
	}
	if c.MaxAnalyzeBytes <= 0 {
		return fmt.Errorf("%w: classification.max_analyze_mb must be positive", common.ErrInvalidConfig)
	}
	switch c.OnConflict {
	case ConflictSkip, ConflictReplace, ConflictAsk:
	default:
		return fmt.Errorf("%w: upload.on_conflict must be skip, replace or ask, got %q", common.ErrInvalidConfig, c.OnConflict)
	}
	return nil
}
