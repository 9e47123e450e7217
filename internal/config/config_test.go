// ABOUTME: Tests for config loading, env expansion, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@relay:example.org"
access_token = "syt_secret"

[relay]
source_channels = ["!news:example.org", "!alerts:example.org"]
operators = ["@admin:example.org"]
policy_path = "/var/lib/relay/policy.json"
recovery_delay = "30s"

[logging]
level = "debug"
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.Homeserver)
	assert.Equal(t, "@relay:example.org", cfg.Matrix.UserID)
	assert.Equal(t, "syt_secret", cfg.Matrix.AccessToken)
	assert.Equal(t, []string{"!news:example.org", "!alerts:example.org"}, cfg.Relay.SourceChannels)
	assert.Equal(t, []string{"@admin:example.org"}, cfg.Relay.Operators)
	assert.Equal(t, "/var/lib/relay/policy.json", cfg.Relay.PolicyPath)
	assert.Equal(t, 30*time.Second, cfg.Relay.RecoveryDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("RELAY_TEST_TOKEN", "syt_from_env")

	cfg, err := Load(writeConfig(t, `
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@relay:example.org"
access_token = "${RELAY_TEST_TOKEN}"
`))
	require.NoError(t, err)
	assert.Equal(t, "syt_from_env", cfg.Matrix.AccessToken)
}

func TestLoad_MissingToken(t *testing.T) {
	_, err := Load(writeConfig(t, `
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@relay:example.org"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
}

func TestLoad_MissingHomeserver(t *testing.T) {
	_, err := Load(writeConfig(t, `
[matrix]
user_id = "@relay:example.org"
access_token = "syt_secret"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "homeserver")
}

func TestLoad_EmptyTopologyIsAllowed(t *testing.T) {
	// No operators and no source channels is degraded but valid.
	cfg, err := Load(writeConfig(t, `
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@relay:example.org"
access_token = "syt_secret"
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Relay.Operators)
	assert.Empty(t, cfg.Relay.SourceChannels)
}

func TestLoad_BadRecoveryDelay(t *testing.T) {
	_, err := Load(writeConfig(t, `
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@relay:example.org"
access_token = "syt_secret"

[relay]
recovery_delay = "soon"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recovery_delay")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, `this is not toml = = =`))
	assert.Error(t, err)
}
