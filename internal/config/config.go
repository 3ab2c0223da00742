// Package config loads engine configuration from a base TOML file, an
// optional override TOML file, and environment variables with a common
// prefix (spec §6), following the teacher's base-defaults-then-
// overrides-then-env shape (internal/config/config.go's Load/
// applyEnvOverrides in the teacher repo) but retargeted to this
// engine's keys and to github.com/BurntSushi/toml instead of YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"codenerd/internal/persist"
)

// Config is the full configuration surface of spec §6.
type Config struct {
	Storage      StorageConfig      `toml:"storage"`
	Optimization OptimizationConfig `toml:"optimization"`
}

type StorageConfig struct {
	DataDir                   string            `toml:"data_dir"`
	DefaultKnowledgeGraph     string            `toml:"default_knowledge_graph"`
	AutoCreateKnowledgeGraphs bool              `toml:"auto_create_knowledge_graphs"`
	Persist                   PersistConfig     `toml:"persist"`
	Performance               PerformanceConfig `toml:"performance"`
}

type PersistConfig struct {
	Enabled         bool   `toml:"enabled"`
	BufferSize      int    `toml:"buffer_size"`
	DurabilityMode  string `toml:"durability_mode"`
	CompactionWindow string `toml:"compaction_window"`
}

type PerformanceConfig struct {
	NumThreads        int   `toml:"num_threads"`
	InitialCapacity   int   `toml:"initial_capacity"`
	BatchSize         int   `toml:"batch_size"`
	QueryTimeoutMs    int64 `toml:"query_timeout_ms"`
	MaxInsertTuples   int64 `toml:"max_insert_tuples"`
	MaxResultRows     int64 `toml:"max_result_rows"`
	MaxQuerySizeBytes int64 `toml:"max_query_size_bytes"`
	MaxStringValueBytes int64 `toml:"max_string_value_bytes"`
}

type OptimizationConfig struct {
	EnableJoinPlanning          bool `toml:"enable_join_planning"`
	EnableSIPRewriting          bool `toml:"enable_sip_rewriting"`
	EnableSubplanSharing        bool `toml:"enable_subplan_sharing"`
	EnableBooleanSpecialization bool `toml:"enable_boolean_specialization"`
}

// DefaultConfig matches the defaults stated or implied across spec
// §4.5/§4.6/§6: immediate durability, a 10000-row shard buffer, no
// optimizer passes enabled beyond the mandatory ones baked into
// internal/ir itself.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:                   "data",
			DefaultKnowledgeGraph:     "default",
			AutoCreateKnowledgeGraphs: true,
			Persist: PersistConfig{
				Enabled:          true,
				BufferSize:       10000,
				DurabilityMode:   string(persist.Immediate),
				CompactionWindow: "5m",
			},
			Performance: PerformanceConfig{
				NumThreads:          0,
				InitialCapacity:     1024,
				BatchSize:           1000,
				QueryTimeoutMs:      30000,
				MaxInsertTuples:     1_000_000,
				MaxResultRows:       1_000_000,
				MaxQuerySizeBytes:   1 << 20,
				MaxStringValueBytes: 1 << 20,
			},
		},
		Optimization: OptimizationConfig{},
	}
}

// Load reads basePath if non-empty and present, then overridePath if
// non-empty and present, then applies environment overrides, returning
// a fully-populated Config. Each TOML layer only needs to set the keys
// it wants to change; unset keys keep whatever the previous layer left.
func Load(basePath, overridePath string) (*Config, error) {
	cfg := DefaultConfig()
	if basePath != "" {
		if _, err := toml.DecodeFile(basePath, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: decode base file %s: %w", basePath, err)
			}
		}
	}
	if overridePath != "" {
		if _, err := toml.DecodeFile(overridePath, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: decode override file %s: %w", overridePath, err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envPrefix is the common prefix spec §6 requires; nested keys are
// separated by "__" (e.g. KG__STORAGE__PERSIST__BUFFER_SIZE).
const envPrefix = "KG__"

// applyEnvOverrides mirrors the teacher's applyEnvOverrides: a flat list
// of explicit os.Getenv checks rather than generic reflection-driven
// binding, since the key set is small and fixed and an explicit list is
// easier to audit against spec §6's key table.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envPrefix + "STORAGE__DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv(envPrefix + "STORAGE__DEFAULT_KNOWLEDGE_GRAPH"); v != "" {
		c.Storage.DefaultKnowledgeGraph = v
	}
	if v, ok := getBool(envPrefix + "STORAGE__AUTO_CREATE_KNOWLEDGE_GRAPHS"); ok {
		c.Storage.AutoCreateKnowledgeGraphs = v
	}
	if v, ok := getBool(envPrefix + "STORAGE__PERSIST__ENABLED"); ok {
		c.Storage.Persist.Enabled = v
	}
	if v, ok := getInt(envPrefix + "STORAGE__PERSIST__BUFFER_SIZE"); ok {
		c.Storage.Persist.BufferSize = v
	}
	if v := os.Getenv(envPrefix + "STORAGE__PERSIST__DURABILITY_MODE"); v != "" {
		c.Storage.Persist.DurabilityMode = v
	}
	if v := os.Getenv(envPrefix + "STORAGE__PERSIST__COMPACTION_WINDOW"); v != "" {
		c.Storage.Persist.CompactionWindow = v
	}
	if v, ok := getInt(envPrefix + "STORAGE__PERFORMANCE__NUM_THREADS"); ok {
		c.Storage.Performance.NumThreads = v
	}
	if v, ok := getInt(envPrefix + "STORAGE__PERFORMANCE__INITIAL_CAPACITY"); ok {
		c.Storage.Performance.InitialCapacity = v
	}
	if v, ok := getInt(envPrefix + "STORAGE__PERFORMANCE__BATCH_SIZE"); ok {
		c.Storage.Performance.BatchSize = v
	}
	if v, ok := getInt64(envPrefix + "STORAGE__PERFORMANCE__QUERY_TIMEOUT_MS"); ok {
		c.Storage.Performance.QueryTimeoutMs = v
	}
	if v, ok := getInt64(envPrefix + "STORAGE__PERFORMANCE__MAX_INSERT_TUPLES"); ok {
		c.Storage.Performance.MaxInsertTuples = v
	}
	if v, ok := getInt64(envPrefix + "STORAGE__PERFORMANCE__MAX_RESULT_ROWS"); ok {
		c.Storage.Performance.MaxResultRows = v
	}
	if v, ok := getInt64(envPrefix + "STORAGE__PERFORMANCE__MAX_QUERY_SIZE_BYTES"); ok {
		c.Storage.Performance.MaxQuerySizeBytes = v
	}
	if v, ok := getInt64(envPrefix + "STORAGE__PERFORMANCE__MAX_STRING_VALUE_BYTES"); ok {
		c.Storage.Performance.MaxStringValueBytes = v
	}
	if v, ok := getBool(envPrefix + "OPTIMIZATION__ENABLE_JOIN_PLANNING"); ok {
		c.Optimization.EnableJoinPlanning = v
	}
	if v, ok := getBool(envPrefix + "OPTIMIZATION__ENABLE_SIP_REWRITING"); ok {
		c.Optimization.EnableSIPRewriting = v
	}
	if v, ok := getBool(envPrefix + "OPTIMIZATION__ENABLE_SUBPLAN_SHARING"); ok {
		c.Optimization.EnableSubplanSharing = v
	}
	if v, ok := getBool(envPrefix + "OPTIMIZATION__ENABLE_BOOLEAN_SPECIALIZATION"); ok {
		c.Optimization.EnableBooleanSpecialization = v
	}
}

func getBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

func getInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func getInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

// ValidDurabilityModes lists the accepted storage.persist.durability_mode
// values (spec §6).
var ValidDurabilityModes = []string{
	string(persist.Immediate),
	string(persist.Batched),
	string(persist.Async),
}

// Validate checks the constrained-enum and positivity invariants spec
// §6 implies for these keys.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("config: storage.data_dir must be set")
	}
	if c.Storage.DefaultKnowledgeGraph == "" {
		return fmt.Errorf("config: storage.default_knowledge_graph must be set")
	}
	valid := false
	for _, m := range ValidDurabilityModes {
		if c.Storage.Persist.DurabilityMode == m {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("config: invalid storage.persist.durability_mode %q (valid: %s)",
			c.Storage.Persist.DurabilityMode, strings.Join(ValidDurabilityModes, ", "))
	}
	if c.Storage.Persist.BufferSize <= 0 {
		return fmt.Errorf("config: storage.persist.buffer_size must be positive")
	}
	return nil
}

// PersistStoreConfig builds the persist.Config this configuration implies
// for one knowledge graph's data directory.
func (c *Config) PersistStoreConfig(kgDataDir string) persist.Config {
	return persist.Config{
		DataDir:        kgDataDir,
		BufferSize:     c.Storage.Persist.BufferSize,
		DurabilityMode: persist.DurabilityMode(c.Storage.Persist.DurabilityMode),
	}
}
