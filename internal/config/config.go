package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// TierBudget bounds how many references and bytes one pack tier may carry.
type TierBudget struct {
	MaxRefs  int   `json:"max_refs,omitempty"`
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// StoreDir is where handoff files, packs and the latest pointer live.
	// Empty means <baseDir>/store. Relative paths are ignored.
	StoreDir string `json:"store_dir,omitempty"`

	// MaxRefs caps the references accepted from one event batch.
	MaxRefs int `json:"max_refs"`

	// MaxBytes caps the cumulative size of files referenced by one handoff.
	MaxBytes int64 `json:"max_bytes"`

	// MaxTokens is the default token budget for hydrate pack selection.
	MaxTokens int `json:"max_tokens"`

	// Tiers overrides per-depth pack budgets, keyed by "shallow", "medium", "full".
	// Missing tiers or zero fields fall back to the built-in budgets.
	Tiers map[string]TierBudget `json:"tiers,omitempty"`

	// RetentionCount is how many handoffs prune keeps. Negative disables
	// pruning after compact.
	RetentionCount int `json:"retention_count"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "text", "json" or "auto" (text on a terminal, JSON otherwise).
	LogFormat string `json:"log_format,omitempty"`

	// AllowedPaths lists extra absolute directories an MCP client may name as
	// an events_path. The compact root and the store directory are always
	// allowed.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRefs:        200,
		MaxBytes:       8 << 20,
		MaxTokens:      2000,
		RetentionCount: 20,
		LogLevel:       "warn",
		LogFormat:      "text",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.handoff.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.handoff) and repo (.handoff) directories.
// Repo config is found by walking upward from startDir to find the nearest .handoff/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .handoff/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".handoff", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolveStoreDir returns the store root for this config.
func (c *Config) ResolveStoreDir(baseDir string) string {
	if c.StoreDir != "" && filepath.IsAbs(c.StoreDir) {
		return filepath.Clean(c.StoreDir)
	}
	return filepath.Join(baseDir, "store")
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
// Comments and trailing commas are accepted.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.StoreDir = firstNonEmpty(overlay.StoreDir, base.StoreDir)
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)
	result.LogFormat = firstNonEmpty(overlay.LogFormat, base.LogFormat)

	result.MaxRefs = overlay.MaxRefs
	if result.MaxRefs == 0 {
		result.MaxRefs = base.MaxRefs
	}

	result.MaxBytes = overlay.MaxBytes
	if result.MaxBytes == 0 {
		result.MaxBytes = base.MaxBytes
	}

	result.MaxTokens = overlay.MaxTokens
	if result.MaxTokens == 0 {
		result.MaxTokens = base.MaxTokens
	}

	result.RetentionCount = overlay.RetentionCount
	if result.RetentionCount == 0 {
		result.RetentionCount = base.RetentionCount
	}

	// Tiers: per-tier, per-field overlay
	if len(base.Tiers) > 0 || len(overlay.Tiers) > 0 {
		result.Tiers = make(map[string]TierBudget)
		for name, tb := range base.Tiers {
			result.Tiers[strings.ToLower(name)] = tb
		}
		for name, tb := range overlay.Tiers {
			name = strings.ToLower(name)
			merged := result.Tiers[name]
			if tb.MaxRefs != 0 {
				merged.MaxRefs = tb.MaxRefs
			}
			if tb.MaxBytes != 0 {
				merged.MaxBytes = tb.MaxBytes
			}
			result.Tiers[name] = merged
		}
	}

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstNonEmpty(a, b string) string {
	if a = strings.TrimSpace(a); a != "" {
		return a
	}
	return strings.TrimSpace(b)
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
