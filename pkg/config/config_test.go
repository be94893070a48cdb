package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultHasConsistentLayout(t *testing.T) {
	cfg := Default()
	assert.NotEqual(t, cfg.SecretsDir, cfg.KeysDir)
	assert.NotEqual(t, cfg.MetadataDir, cfg.KeysDir)
	assert.Equal(t, 7117, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Address)
}

func TestApplyConflictPolicyAllowsMetadataEqualsSecrets(t *testing.T) {
	cfg := Default()
	cfg.MetadataDir = cfg.SecretsDir

	applyConflictPolicy(&cfg)

	assert.Equal(t, cfg.MetadataDir, cfg.SecretsDir, "metadata_dir == secrets_dir is explicitly supported")
}

func TestApplyConflictPolicyResetsOnMetadataEqualsKeys(t *testing.T) {
	cfg := Default()
	cfg.MetadataDir = cfg.KeysDir

	applyConflictPolicy(&cfg)

	defaults := Default()
	assert.Equal(t, defaults.SecretsDir, cfg.SecretsDir)
	assert.Equal(t, defaults.MetadataDir, cfg.MetadataDir)
	assert.Equal(t, defaults.KeysDir, cfg.KeysDir)
}

func TestApplyConflictPolicyResetsOnSecretsEqualsKeys(t *testing.T) {
	cfg := Default()
	cfg.SecretsDir = cfg.KeysDir

	applyConflictPolicy(&cfg)

	defaults := Default()
	assert.Equal(t, defaults.SecretsDir, cfg.SecretsDir)
	assert.Equal(t, defaults.MetadataDir, cfg.MetadataDir)
	assert.Equal(t, defaults.KeysDir, cfg.KeysDir)
}
