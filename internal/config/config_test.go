package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CIVITAI_TOKEN", "")
	t.Setenv("CIVITAI_USERNAME", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.Civitai.BaseURL)
	assert.Equal(t, DefaultUserAgent, cfg.Civitai.UserAgent)
	assert.Equal(t, "images", cfg.Output.ImagesDir)
	assert.Equal(t, "images_nsfw", cfg.Output.NSFWImagesDir)
	assert.Equal(t, "prompts_sfw.txt", cfg.Output.SFWPromptsFile)
	assert.Equal(t, "prompts_nsfw.txt", cfg.Output.NSFWPromptsFile)
	assert.False(t, cfg.Database.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
civitai:
  username: from-file
  timeout: 15
output:
  images_dir: out/sfw
  nsfw_images_dir: out/nsfw
database:
  driver: sqlite3
  path: catalog.db
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("CIVITAI_TOKEN", "secret")
	t.Setenv("CIVITAI_USERNAME", "from-env")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Civitai.Token)
	assert.Equal(t, "from-env", cfg.Civitai.Username)
	assert.Equal(t, 15, cfg.Civitai.Timeout)
	assert.Equal(t, DefaultBaseURL, cfg.Civitai.BaseURL, "unset keys keep their default")
	assert.Equal(t, "out/sfw", cfg.Output.ImagesDir)
	assert.Equal(t, "prompts_sfw.txt", cfg.Output.SFWPromptsFile)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "catalog.db", cfg.Database.Path)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("civitai: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Civitai.Username = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Output.NSFWImagesDir = cfg.Output.ImagesDir
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Driver = "postgres"
	assert.NoError(t, cfg.Validate())
}
