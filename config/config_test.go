package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
name: "test-cache"
version: "1.0.0"

storage:
  type: "memory"
  config:
    max_bytes: 1024

cache:
  enabled: true
  bucket: "test"
  resolution: 30s
  default_ttl: 5m

sweep:
  enabled: true
  schedule: "0 * * * * *"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoaderLoadFromFile(t *testing.T) {
	loader := NewLoader()

	config, err := loader.LoadFromFile(context.Background(), writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "test-cache", config.Name)
	assert.Equal(t, "memory", config.Storage.Type)
	assert.Equal(t, "test", config.Cache.Bucket)
	assert.Equal(t, 30*time.Second, config.Cache.Resolution.Std())
	assert.Equal(t, 5*time.Minute, config.Cache.DefaultTTL.Std())
	assert.True(t, config.Sweep.Enabled)
}

func TestLoaderDefaultsApplied(t *testing.T) {
	loader := NewLoader()

	config, err := loader.LoadFromFile(context.Background(), writeConfig(t, `
name: "minimal"
version: "0.1.0"
`))
	require.NoError(t, err)

	assert.Equal(t, "memory", config.Storage.Type)
	assert.Equal(t, "saicache-", config.Cache.Prefix)
	assert.Equal(t, time.Minute, config.Cache.Resolution.Std())
	assert.Equal(t, "json", config.Cache.Codec)
	assert.False(t, config.Sweep.Enabled)
	assert.Equal(t, "localhost", config.Server.Host)
}

func TestLoaderValidation(t *testing.T) {
	loader := NewLoader()

	// name and version are mandatory.
	_, err := loader.LoadFromFile(context.Background(), writeConfig(t, `
version: "1.0.0"
`))
	assert.Error(t, err)
}

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader()

	_, err := loader.LoadFromFile(context.Background(), "/does/not/exist.yml")
	assert.Error(t, err)
}

func TestParserGetValue(t *testing.T) {
	loader := NewLoader()

	config, err := loader.LoadFromFile(context.Background(), writeConfig(t, validConfig))
	require.NoError(t, err)

	parser := NewParser(config)

	assert.Equal(t, "test-cache", parser.GetValue("name", ""))
	assert.Equal(t, "test", parser.GetValue("cache.bucket", ""))
	assert.Equal(t, "fallback", parser.GetValue("cache.unknown", "fallback"))
	assert.Equal(t, 42, parser.GetValue("nothing.here", 42))
}

func TestParserGetAs(t *testing.T) {
	loader := NewLoader()

	config, err := loader.LoadFromFile(context.Background(), writeConfig(t, validConfig))
	require.NoError(t, err)

	parser := NewParser(config)

	var bucket string
	require.NoError(t, parser.GetAs("cache.bucket", &bucket))
	assert.Equal(t, "test", bucket)

	var missing string
	assert.Error(t, parser.GetAs("cache.absent", &missing))
}
