// Package config handles loading, saving, and resolving the reposync
// workspace configuration: the typed subset of keys the sync engine
// actually consults (repo.*, color.ui, manifest.groups, user.*,
// remote.<name>.*, branch.<name>.*). Keys the engine never reads have
// no representation here.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	// LocalConfigFilename is the per-directory reposync config file.
	LocalConfigFilename = ".reposync.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/reposync/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "ReposyncConfig"
	// EnvConfigOverride is the environment variable that overrides config
	// resolution, mirroring REPO_TRACE-style env consultation.
	EnvConfigOverride = "REPOSYNC_CONFIG"
)

// RepoDefaults holds the repo.* key family.
type RepoDefaults struct {
	Depth     int    `yaml:"depth,omitempty"`
	Mirror    bool   `yaml:"mirror,omitempty"`
	Archive   bool   `yaml:"archive,omitempty"`
	Reference string `yaml:"reference,omitempty"`
}

// UserIdentity holds the user.* key family, used to partition local-only
// commits by committer email in the local reconciler.
type UserIdentity struct {
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
}

// RemoteOverride holds one remote.<name>.* family entry.
type RemoteOverride struct {
	Name   string `yaml:"name"`
	Fetch  string `yaml:"fetch,omitempty"`
	Review string `yaml:"review,omitempty"`
}

// BranchOverride holds one branch.<name>.* family entry.
type BranchOverride struct {
	Name   string `yaml:"name"`
	Merge  string `yaml:"merge,omitempty"`
	Remote string `yaml:"remote,omitempty"`
	Rebase *bool  `yaml:"rebase,omitempty"`
}

// Defaults holds default values for sync operations.
type Defaults struct {
	Concurrency    int `yaml:"concurrency"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Config represents the workspace-level reposync configuration.
type Config struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`

	Repo           RepoDefaults     `yaml:"repo"`
	ColorUI        string           `yaml:"color_ui,omitempty"` // true | false | auto
	ManifestGroups []string         `yaml:"manifest_groups,omitempty"`
	User           UserIdentity     `yaml:"user"`
	Remotes        []RemoteOverride `yaml:"remotes,omitempty"`
	Branches       []BranchOverride `yaml:"branches,omitempty"`
	Defaults       Defaults         `yaml:"defaults"`
	SmartSyncURL   string           `yaml:"smart_sync_url,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion: ConfigAPIVersion,
		Kind:       ConfigKind,
		ColorUI:    "auto",
		Defaults: Defaults{
			Concurrency:    8,
			TimeoutSeconds: 60,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory path.
// Order: override parameter, REPOSYNC_CONFIG env var, os.UserConfigDir().
func ConfigDir(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return filepath.Dir(override), nil
		}
		return override, nil
	}
	if env := os.Getenv(EnvConfigOverride); env != "" {
		if isConfigFilePath(env) {
			return filepath.Dir(env), nil
		}
		return env, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "reposync"), nil
}

// ConfigPath resolves the config file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return override, nil
		}
		return filepath.Join(override, "config.yaml"), nil
	}
	if env := os.Getenv(EnvConfigOverride); env != "" {
		if isConfigFilePath(env) {
			return env, nil
		}
		return filepath.Join(env, "config.yaml"), nil
	}
	dir, err := ConfigDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// InitConfigPath resolves where "reposync init" should write config.
// Order: explicit override, REPOSYNC_CONFIG, then local dotfile in cwd.
func InitConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfigOverride) != "" {
		return ConfigPath(override)
	}
	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(cwd, LocalConfigFilename), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, REPOSYNC_CONFIG, nearest local dotfile in
// cwd/parents, then global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfigOverride) != "" {
		return ConfigPath(override)
	}
	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}
	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for
// .reposync.yaml. It returns an empty string when none is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigGVK(&cfg)
	if err := validateConfigGVK(&cfg); err != nil {
		return nil, err
	}
	if cfg.Defaults.Concurrency == 0 {
		cfg.Defaults.Concurrency = DefaultConfig().Defaults.Concurrency
	}
	if cfg.Defaults.TimeoutSeconds == 0 {
		cfg.Defaults.TimeoutSeconds = DefaultConfig().Defaults.TimeoutSeconds
	}
	if cfg.ColorUI == "" {
		cfg.ColorUI = "auto"
	}
	return &cfg, nil
}

// Save writes the config to the given path.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	if err := validateConfigGVK(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// RemoteByName looks up a configured remote.<name>.* override.
func (c *Config) RemoteByName(name string) (RemoteOverride, bool) {
	for _, r := range c.Remotes {
		if r.Name == name {
			return r, true
		}
	}
	return RemoteOverride{}, false
}

// BranchByName looks up a configured branch.<name>.* override.
func (c *Config) BranchByName(name string) (BranchOverride, bool) {
	for _, b := range c.Branches {
		if b.Name == name {
			return b, true
		}
	}
	return BranchOverride{}, false
}

// EffectiveRoot returns the workspace root implied by a config file path.
func EffectiveRoot(configPath string) string {
	if strings.TrimSpace(configPath) == "" {
		return ""
	}
	return filepath.Clean(filepath.Dir(configPath))
}

// LastUpdated returns "now" formatted for persisted timestamps.
func LastUpdated() string {
	return time.Now().Format(time.RFC3339)
}

func isConfigFilePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "config.yaml") || strings.HasSuffix(lower, "config.yml") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyConfigGVK(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateConfigGVK(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
