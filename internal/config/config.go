// Package config loads and validates Omega search configuration.
//
// A config file is YAML. Its raw document is checked against an embedded CUE
// schema before being decoded over Default, so a file only needs the fields
// it changes. CLI flags are applied on top by the caller, and the effective
// config is validated again with Validate.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/search"
)

//go:embed schema.cue
var schemaCUE string

// DefaultDB is the checkpoint database used when none is configured.
const DefaultDB = "omega.db"

// Checkpoint controls how often a running search is persisted.
// Zero disables the corresponding trigger.
type Checkpoint struct {
	EveryOmega     int    `yaml:"every_omega"`
	EveryProcessed uint64 `yaml:"every_processed"`
}

// Config is the effective search configuration.
type Config struct {
	Space            combo.Space         `yaml:"space"`
	Thresholds       affinity.Thresholds `yaml:"thresholds"`
	Tables           string              `yaml:"tables,omitempty"`
	DB               string              `yaml:"db"`
	Workers          int                 `yaml:"workers"` // 0 = one per CPU
	MaxWorkers       int                 `yaml:"max_workers"`
	Units            int                 `yaml:"units"`
	Checkpoint       Checkpoint          `yaml:"checkpoint"`
	SmokeLimit       uint64              `yaml:"smoke_limit"`
	EstimateSample   uint64              `yaml:"estimate_sample"`
	ProgressInterval time.Duration       `yaml:"progress_interval"`
	MetricsFile      string              `yaml:"metrics_file,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Space:      combo.DefaultSpace(),
		Thresholds: affinity.DefaultThresholds(),
		DB:         DefaultDB,
		MaxWorkers: search.DefaultMaxWorkers,
		Units:      search.DefaultUnits,
		Checkpoint: Checkpoint{
			EveryOmega:     search.DefaultCheckpointEvery,
			EveryProcessed: search.DefaultCheckpointProcessed,
		},
		SmokeLimit:       search.DefaultSmokeLimit,
		EstimateSample:   search.DefaultEstimateSample,
		ProgressInterval: search.DefaultProgressInterval,
	}
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.Message
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Load reads path and overlays it on Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse checks a YAML document against the schema and decodes it into cfg.
// Fields absent from the document keep their current value.
func Parse(data []byte, cfg *Config) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := checkSchema(doc); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return cfg.Validate()
}

// SearchOptions maps the config onto coordinator options for mode.
// Smoke mode bounds the run to SmokeLimit combinations.
func (c Config) SearchOptions(mode search.Mode) search.Options {
	opts := search.Options{
		Space:               c.Space,
		Thresholds:          c.Thresholds,
		Workers:             c.Workers,
		MaxWorkers:          c.MaxWorkers,
		Units:               c.Units,
		CheckpointEvery:     c.Checkpoint.EveryOmega,
		CheckpointProcessed: c.Checkpoint.EveryProcessed,
		ProgressInterval:    c.ProgressInterval,
	}
	if mode == search.ModeSmoke {
		opts.Limit = c.SmokeLimit
	}
	return opts
}

// Validate checks the effective config: schema constraints first, then the
// rules that span fields.
func (c Config) Validate() error {
	doc, err := toDocument(c)
	if err != nil {
		return err
	}
	if err := checkSchema(doc); err != nil {
		return err
	}

	if c.Space.Max <= c.Space.Min {
		return &ValidationError{Field: "space", Message: fmt.Sprintf("max %d must exceed min %d", c.Space.Max, c.Space.Min)}
	}
	if !c.Space.Valid() {
		return &ValidationError{Field: "space", Message: fmt.Sprintf("%s has no combinations", c.Space)}
	}
	if err := c.Thresholds.Validate(); err != nil {
		return &ValidationError{Field: "thresholds", Message: err.Error()}
	}
	if c.Workers > c.MaxWorkers {
		return &ValidationError{Field: "workers", Message: fmt.Sprintf("%d exceeds max_workers %d", c.Workers, c.MaxWorkers)}
	}
	if c.ProgressInterval < 0 {
		return &ValidationError{Field: "progress_interval", Message: "must not be negative"}
	}
	return nil
}

// Marshal renders the config as YAML.
func Marshal(c Config) ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// toDocument converts c to the generic form the schema is checked against.
func toDocument(c Config) (map[string]any, error) {
	data, err := Marshal(c)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("reparse config: %w", err)
	}
	return doc, nil
}

// checkSchema unifies doc with #Config and reports the first violation.
func checkSchema(doc map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first CUE error and its field path.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		Field:   strings.Join(trimDefinition(first.Path()), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

func trimDefinition(path []string) []string {
	if len(path) > 0 && path[0] == "#Config" {
		return path[1:]
	}
	return path
}
