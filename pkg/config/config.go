// Package config loads the passd daemon configuration: the on-disk
// directory layout, network listener, logging, and default recipient/
// decryption key paths.
//
// Resolution order, first existing path wins: $PASSD_CONFIG_DIR/config.toml,
// then the platform config directory's passd/config.toml, then
// ~/.passd/config.toml. Absence of all three is not an error; defaults
// apply. Grounded on original_source/src/utils/config.rs and
// original_source/src/models/config.rs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/cuemby/passd/pkg/log"
)

// Config is the daemon's resolved configuration.
type Config struct {
	BaseDir          string `toml:"base_dir"`
	SecretsDir       string `toml:"secrets_dir"`
	MetadataDir      string `toml:"metadata_dir"`
	KeysDir          string `toml:"keys_dir"`
	LogFile          string `toml:"log_file"`
	LogLevel         string `toml:"log_level"`
	Address          string `toml:"address"`
	Port             int    `toml:"port"`
	MetadataTemplate string `toml:"metadata_template"`
	PublicKeyPath    string `toml:"public_key_path"`
	PrivateKeyPath   string `toml:"private_key_path"`
}

// Default returns the daemon's built-in defaults, rooted under the calling
// user's home directory.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".passd")
	return Config{
		BaseDir:          base,
		SecretsDir:       filepath.Join(base, "secrets"),
		MetadataDir:      filepath.Join(base, ".metadata"),
		KeysDir:          filepath.Join(base, ".keys"),
		LogFile:          filepath.Join(base, ".passd.log"),
		LogLevel:         "info",
		Address:          "127.0.0.1",
		Port:             7117,
		MetadataTemplate: "default",
		PublicKeyPath:    filepath.Join(base, ".keys", "public.asc"),
		PrivateKeyPath:   filepath.Join(base, ".keys", "private.asc"),
	}
}

// resolvePath returns the first existing config file path in the
// documented resolution order, or "" if none exist.
func resolvePath() string {
	if dir := os.Getenv("PASSD_CONFIG_DIR"); dir != "" {
		candidate := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if xdg, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(xdg, "passd", "config.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".passd", "config.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Load resolves and parses the daemon's configuration file, falling back to
// Default() when none of the candidate paths exist. After parsing it
// applies the directory conflict policy before returning.
func Load() (Config, error) {
	cfg := Default()

	path := resolvePath()
	if path == "" {
		log.Warn("no config file found, using defaults")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyConflictPolicy(&cfg)
	return cfg, nil
}

// applyConflictPolicy enforces the redesigned directory collision rule:
// metadata_dir == secrets_dir is explicitly supported (a single directory
// holding both ciphertext and sidecars), but metadata_dir == keys_dir or
// secrets_dir == keys_dir is not, since a key material directory must never
// double as a secret or metadata store. Either of those collisions resets
// all three directories to their defaults, not just the colliding pair.
func applyConflictPolicy(cfg *Config) {
	defaults := Default()
	metaEqualsKeys := cfg.MetadataDir == cfg.KeysDir
	secretsEqualsKeys := cfg.SecretsDir == cfg.KeysDir
	if metaEqualsKeys || secretsEqualsKeys {
		log.Warn("configured secrets/metadata/keys directories collide on the keys directory, falling back to defaults")
		cfg.BaseDir = defaults.BaseDir
		cfg.SecretsDir = defaults.SecretsDir
		cfg.MetadataDir = defaults.MetadataDir
		cfg.KeysDir = defaults.KeysDir
	}
}
