package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolate points every config search path at an empty temp dir and clears
// the environment variables the loader reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, name := range []string{"MAX_PDF_PAGES", "PDF_DPI", "OCR_MODEL_DIR"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	return dir
}

func newTestLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_NoConfigFile(t *testing.T) {
	isolate(t)

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, &want, cfg)
}

func TestLoad_SearchPathFile(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "ocrnlp.yaml", `
log_level: debug
pdf:
  max_pages: 3
`)

	loader := newTestLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.PDF.MaxPages)
	assert.Equal(t, 220, cfg.PDF.DPI, "unset keys keep defaults")
	assert.Equal(t, "ocrnlp.yaml", filepath.Base(loader.GetConfigFileUsed()))
}

func TestLoadWithFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "custom.yaml", `
server:
  port: 9001
  rate_limit_enabled: true
  requests_per_minute: 5
  max_requests_per_day: 200
  max_data_per_day_mb: 100
recognition:
  engine: http
  endpoint: http://ocr-sidecar:8080/recognize
  level: word
concurrency:
  max_workers: 2
  max_queue: 0
`)

	cfg, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.True(t, cfg.Server.RateLimitEnabled)
	assert.Equal(t, 5, cfg.Server.RequestsPerMinute)
	assert.Equal(t, 200, cfg.Server.MaxRequestsPerDay)
	assert.Equal(t, 100, cfg.Server.MaxDataPerDayMB)
	assert.Equal(t, EngineHTTP, cfg.Recognition.Engine)
	assert.Equal(t, "http://ocr-sidecar:8080/recognize", cfg.Recognition.Endpoint)
	assert.Equal(t, "word", cfg.Recognition.Level)
	assert.Equal(t, 2, cfg.Concurrency.MaxWorkers)
	assert.Equal(t, 0, cfg.Concurrency.MaxQueue)
}

func TestLoadWithFile_Errors(t *testing.T) {
	dir := isolate(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := newTestLoader().LoadWithFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, dir, "bad.yaml", "server: [unclosed\n")
		_, err := newTestLoader().LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("validation failure", func(t *testing.T) {
		path := writeConfig(t, dir, "invalid.yaml", "pdf:\n  backend: ghostscript\n")
		_, err := newTestLoader().LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")

		cfg, err := newTestLoader().LoadWithFileWithoutValidation(path)
		require.NoError(t, err)
		assert.Equal(t, "ghostscript", cfg.PDF.Backend)
	})
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OCRNLP_LOG_LEVEL", "warn")
	t.Setenv("OCRNLP_SERVER_PORT", "8123")
	t.Setenv("OCRNLP_RECOGNITION_LANGUAGES", "eng,deu")
	t.Setenv("OCRNLP_CONCURRENCY_MAX_QUEUE", "7")

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, []string{"eng", "deu"}, cfg.Recognition.Languages)
	assert.Equal(t, 7, cfg.Concurrency.MaxQueue)
}

func TestLoad_CompatibilityEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("MAX_PDF_PAGES", "2")
	t.Setenv("PDF_DPI", "150")
	t.Setenv("OCR_MODEL_DIR", "/models/tessdata")

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.PDF.MaxPages)
	assert.Equal(t, 150, cfg.PDF.DPI)
	assert.Equal(t, "/models/tessdata", cfg.Recognition.ModelDir)
}

func TestLoad_PrefixedEnvironmentWinsOverCompat(t *testing.T) {
	isolate(t)
	t.Setenv("MAX_PDF_PAGES", "2")
	t.Setenv("OCRNLP_PDF_MAX_PAGES", "4")

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.PDF.MaxPages)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "ocrnlp.yaml", "pdf:\n  dpi: 300\n")
	t.Setenv("OCRNLP_PDF_DPI", "96")

	cfg, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 96, cfg.PDF.DPI)
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "generated.yaml")

	require.NoError(t, GenerateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, DefaultConfig(), cfg)

	// The generated file loads back cleanly.
	loaded, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *loaded)
}

func TestGenerateDefaultConfigFile_DefaultName(t *testing.T) {
	dir := isolate(t)

	require.NoError(t, GenerateDefaultConfigFile(""))
	assert.FileExists(t, filepath.Join(dir, "ocrnlp.yaml"))
}

func TestGetConfigSearchPaths(t *testing.T) {
	dir := isolate(t)

	paths := GetConfigSearchPaths()

	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, dir)
	assert.Contains(t, paths, filepath.Join(dir, "xdg", "ocrnlp"))
	assert.Equal(t, "/etc/ocrnlp", paths[len(paths)-1])
}
