// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"

	"github.com/wmenjoy/sql-tools-sub019/internal/validation"
)

// CheckerConfig is the complete, hot-reloadable tuning surface for the
// prevention engine: thresholds, table/field lists, and per-checker enable
// flags. A CheckerConfig value is immutable once built; updates are applied
// by building a new value and swapping it into a ConfigStore.
type CheckerConfig struct {
	Dialect  string `koanf:"dialect" validate:"oneof=mysql postgresql oracle sqlserver h2"`
	Priority map[string]int `koanf:"priority"`
	Enabled  map[string]bool `koanf:"enabled"`

	// EnforceMaxLimit, when true, caps existing numeric LIMIT values down to
	// MaxLimit instead of leaving them untouched. Default false: operators
	// must opt in (see DESIGN.md for the rationale).
	EnforceMaxLimit bool  `koanf:"enforce_max_limit"`
	MaxLimit        int64 `koanf:"max_limit" validate:"gt=0"`

	DeepPaginationOffsetThreshold int64 `koanf:"deep_pagination_offset_threshold" validate:"gt=0"`
	LargePageSizeCap              int64 `koanf:"large_page_size_cap" validate:"gt=0"`

	BlacklistFields []string `koanf:"blacklist_fields"`
	WhitelistTables []string `koanf:"whitelist_required_tables"`
	DenylistTablePatterns []string `koanf:"denylist_table_patterns"`
	ReadOnlyTables        []string `koanf:"read_only_tables"`
	LargeTables           []string `koanf:"large_tables"`

	DangerousFunctions []string `koanf:"dangerous_functions"`

	// DummyConditionAggressive enables folding of additional tautology
	// shapes (identifier self-comparison such as a=a, and numeric-literal
	// comparisons such as 2>1) beyond the baseline literal forms
	// ('1=1', 'a'='a', true). Opt-in; see DESIGN.md.
	DummyConditionAggressive bool `koanf:"dummy_condition_aggressive"`

	DedupCacheSize int           `koanf:"dedup_cache_size" validate:"gt=0"`
	DedupTTL       string        `koanf:"dedup_ttl"`
	ParserCacheSize int          `koanf:"parser_cache_size" validate:"gt=0"`
	ParserCacheTTL  string       `koanf:"parser_cache_ttl"`
}

// DefaultCheckerConfig returns the struct-literal defaults loaded as layer
// one of the koanf precedence chain (struct defaults -> optional YAML file
// -> env vars), matching the teacher's three-layer configuration pattern.
func DefaultCheckerConfig() *CheckerConfig {
	return &CheckerConfig{
		Dialect: "mysql",
		Priority: map[string]int{
			"MultiStatement":     0,
			"SqlComment":         1,
			"IntoOutfile":        2,
			"DdlOperation":       3,
			"DangerousFunction":  4,
			"DeniedTable":        5,
			"NoWhereClause":      10,
			"DummyCondition":     11,
			"ReadOnlyTable":      12,
			"CallStatement":      20,
			"MetadataStatement":  21,
			"SetStatement":       22,
			"BlacklistField":     30,
			"WhitelistField":     31,
			"SetOperation":       32,
			"LogicalPagination":  40,
			"DeepPagination":     41,
			"LargePageSize":      42,
			"MissingOrderBy":     43,
			"NoPagination":       44,
		},
		Enabled:                       map[string]bool{},
		EnforceMaxLimit:               false,
		MaxLimit:                      1000,
		DeepPaginationOffsetThreshold: 10000,
		LargePageSizeCap:              1000,
		BlacklistFields:               []string{"status", "deleted", "is_active", "enabled"},
		WhitelistTables:               nil,
		DenylistTablePatterns:         []string{"sys_*", "information_schema.*", "pg_catalog.*"},
		ReadOnlyTables:                nil,
		LargeTables:                   nil,
		DangerousFunctions:            []string{"load_file", "sys_exec", "sleep", "benchmark", "xp_cmdshell", "pg_sleep"},
		DummyConditionAggressive:      false,
		DedupCacheSize:                256,
		DedupTTL:                      "5m",
		ParserCacheSize:               1000,
		ParserCacheTTL:                "30m",
	}
}

// IsEnabled reports whether checkerID is enabled. Checkers default to
// enabled; the map only needs to carry explicit overrides.
func (c *CheckerConfig) IsEnabled(checkerID string) bool {
	if v, ok := c.Enabled[checkerID]; ok {
		return v
	}
	return true
}

// PriorityOf returns the configured priority for checkerID, or 100 (runs
// after every named checker) when absent.
func (c *CheckerConfig) PriorityOf(checkerID string) int {
	if v, ok := c.Priority[checkerID]; ok {
		return v
	}
	return 100
}

// Validate enforces the struct tags above via the module's shared
// validator.Validate singleton (internal/validation), the same one used
// for every other struct-tag-driven config in this codebase.
func (c *CheckerConfig) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	return nil
}

// ConfigPathEnvVar names the environment variable that overrides the
// default config file search path.
const ConfigPathEnvVar = "SQLGUARD_CONFIG_PATH"

// DefaultConfigPaths lists the paths searched, in order, for an optional
// override file.
var DefaultConfigPaths = []string{
	"sqlguard.yaml",
	"sqlguard.yml",
	"/etc/sqlguard/config.yaml",
}

// LoadCheckerConfig builds a CheckerConfig from three layers in ascending
// priority: struct defaults, an optional YAML file, then environment
// variables (prefix SQLGUARD_).
func LoadCheckerConfig() (*CheckerConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultCheckerConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load checker config defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load checker config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("SQLGUARD_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load checker config env vars: %w", err)
	}

	cfg := &CheckerConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal checker config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("checker config validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func envTransform(s string) string {
	// SQLGUARD_MAX_LIMIT -> max_limit
	const prefix = "SQLGUARD_"
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		s = s[len(prefix):]
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == '_' {
			out = append(out, '_')
			continue
		}
		if r >= 'A' && r <= 'Z' {
			out = append(out, byte(r-'A'+'a'))
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}

// ConfigStore holds the live CheckerConfig as an atomically swappable
// snapshot. Every validation call loads the current snapshot once at the
// start and reads from that local copy, matching the engine's copy-on-write
// shared-resource policy: updates never mutate a config in place and never
// touch a checker mid-validation.
type ConfigStore struct {
	current atomic.Pointer[CheckerConfig]
}

// NewConfigStore wraps an initial config in a store.
func NewConfigStore(initial *CheckerConfig) *ConfigStore {
	s := &ConfigStore{}
	s.current.Store(initial)
	return s
}

// Load returns the current snapshot.
func (s *ConfigStore) Load() *CheckerConfig {
	return s.current.Load()
}

// Swap atomically replaces the live snapshot after validating next.
func (s *ConfigStore) Swap(next *CheckerConfig) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.current.Store(next)
	log.Info().Msg("checker config reloaded")
	return nil
}

// WatchConfigFile wires a koanf file.Provider watch on path so config edits
// on disk trigger onChange, which is expected to call LoadCheckerConfig and
// ConfigStore.Swap.
func WatchConfigFile(path string, onChange func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			log.Error().Err(err).Msg("checker config watch error")
			return
		}
		onChange()
	})
}
