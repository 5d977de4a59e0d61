// Package config loads engine profiles: scoring fields and thresholds,
// the blocking descriptor, merge strategies, and store settings. Profiles
// are YAML files; RESOLVE_* environment variables override individual
// settings after loading.
package config

import (
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/agentstation/resolve/pkg/blocking"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/merge"
	"github.com/agentstation/resolve/pkg/scoring"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is memory or sqlite.
	Driver string `yaml:"driver"`
	// Path is the sqlite database file. Ignored by the memory driver.
	Path string `yaml:"path,omitempty"`
}

// QueueConfig tunes auto-queueing.
type QueueConfig struct {
	AutoQueue bool     `yaml:"autoQueue"`
	Buffer    int      `yaml:"buffer,omitempty"`
	Priority  int      `yaml:"priority,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Config is a full engine profile.
type Config struct {
	Scoring      scoring.Config       `yaml:"scoring"`
	Blocking     *blocking.Descriptor `yaml:"blocking,omitempty"`
	Merge        merge.Config         `yaml:"merge,omitempty"`
	Queue        QueueConfig          `yaml:"queue,omitempty"`
	Store        StoreConfig          `yaml:"store,omitempty"`
	Log          LogConfig            `yaml:"log,omitempty"`
	MaxFetchSize int                  `yaml:"maxFetchSize,omitempty"`
}

// Default returns a profile with the memory store and default thresholds.
// Scoring fields must still be provided before the profile validates.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Driver: StoreMemory},
		Queue: QueueConfig{AutoQueue: true},
	}
}

// Load reads a YAML profile, applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConnection("config file", err)
	}
	return Parse(data)
}

// Parse decodes a YAML profile, applies environment overrides, and
// validates.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.WrapValidation("config", err)
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// envKeys are the settings overridable via RESOLVE_* variables, e.g.
// RESOLVE_STORE_DRIVER or RESOLVE_SCORING_DEFINITE_MATCH_THRESHOLD.
var envKeys = []string{
	"store.driver",
	"store.path",
	"log.level",
	"log.format",
	"max.fetch.size",
	"scoring.no.match.threshold",
	"scoring.definite.match.threshold",
	"queue.auto.queue",
}

// ApplyEnv overlays RESOLVE_* environment variables onto the profile.
func (c *Config) ApplyEnv() {
	v := viper.New()
	v.SetEnvPrefix("RESOLVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if s := v.GetString("store.driver"); s != "" {
		c.Store.Driver = s
	}
	if s := v.GetString("store.path"); s != "" {
		c.Store.Path = s
	}
	if s := v.GetString("log.level"); s != "" {
		c.Log.Level = s
	}
	if s := v.GetString("log.format"); s != "" {
		c.Log.Format = s
	}
	if v.IsSet("max.fetch.size") {
		c.MaxFetchSize = v.GetInt("max.fetch.size")
	}
	if v.IsSet("scoring.no.match.threshold") {
		c.Scoring.NoMatchThreshold = v.GetFloat64("scoring.no.match.threshold")
	}
	if v.IsSet("scoring.definite.match.threshold") {
		c.Scoring.DefiniteMatchThreshold = v.GetFloat64("scoring.definite.match.threshold")
	}
	if v.IsSet("queue.auto.queue") {
		c.Queue.AutoQueue = v.GetBool("queue.auto.queue")
	}
}

// Validate checks the profile by constructing its engine components.
func (c *Config) Validate() error {
	if _, err := scoring.NewEngine(c.Scoring); err != nil {
		return err
	}
	if c.Blocking != nil {
		if _, err := blocking.FromDescriptor(*c.Blocking); err != nil {
			return err
		}
	}
	if _, err := merge.NewExecutor(c.Merge); err != nil {
		return err
	}
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	default:
		return errors.NewValidationError("store.driver", c.Store.Driver, "must be memory or sqlite")
	}
	if c.Store.Driver == StoreSQLite && c.Store.Path == "" {
		return errors.NewValidationError("store.path", nil, "sqlite store requires a database path")
	}
	if c.MaxFetchSize < 0 {
		return errors.NewValidationError("maxFetchSize", c.MaxFetchSize, "must not be negative")
	}
	return nil
}

// BlockingStrategy builds the configured blocking strategy, or nil when
// the profile has none.
func (c *Config) BlockingStrategy() (blocking.Strategy, error) {
	if c.Blocking == nil {
		return nil, nil
	}
	return blocking.FromDescriptor(*c.Blocking)
}
