package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "eventd.yaml")

	content := `
trusted_sources:
  - auth-service
  - billing-service
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := LoadFileConfig(path)

	assert.Equal(t, []string{"auth-service", "billing-service"}, cfg.TrustedSources)
}

func TestLoadFileConfig_MissingFile(t *testing.T) {
	cfg := LoadFileConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	assert.Empty(t, cfg.TrustedSources)
}

func TestLoadFileConfig_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "eventd.yaml")

	require.NoError(t, os.WriteFile(path, []byte{}, 0o600))

	cfg := LoadFileConfig(path)

	assert.Empty(t, cfg.TrustedSources)
}

func TestLoadFileConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "eventd.yaml")

	require.NoError(t, os.WriteFile(path, []byte("trusted_sources: [unterminated"), 0o600))

	cfg := LoadFileConfig(path)

	assert.Empty(t, cfg.TrustedSources)
}
