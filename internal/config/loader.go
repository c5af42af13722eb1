package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "ocrnlp"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "OCRNLP"
)

// compatEnv lists unprefixed environment variables honored for existing
// deployments, after the prefixed name.
var compatEnv = map[string]string{
	"pdf.max_pages":         "MAX_PDF_PAGES",
	"pdf.dpi":               "PDF_DPI",
	"recognition.model_dir": "OCR_MODEL_DIR",
}

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first config file found on the search path, environment
// variables and defaults, then validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile is Load with an explicit config file. An empty path searches
// the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration without validating it,
// for commands that only display or write it.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()

		if err := l.v.ReadInConfig(); err != nil {
			// A missing file is fine; defaults and env vars apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	for key, legacy := range compatEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		// The first set variable wins.
		_ = l.v.BindEnv(key, prefixed, legacy)
	}
}

// setDefaults registers every key, so environment variables are seen by
// Unmarshal even when no file mentions the key.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit_enabled", defaults.Server.RateLimitEnabled)
	l.v.SetDefault("server.requests_per_minute", defaults.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_hour", defaults.Server.RequestsPerHour)
	l.v.SetDefault("server.max_requests_per_day", defaults.Server.MaxRequestsPerDay)
	l.v.SetDefault("server.max_data_per_day_mb", defaults.Server.MaxDataPerDayMB)

	l.v.SetDefault("pdf.max_pages", defaults.PDF.MaxPages)
	l.v.SetDefault("pdf.dpi", defaults.PDF.DPI)
	l.v.SetDefault("pdf.backend", defaults.PDF.Backend)
	l.v.SetDefault("pdf.pdftoppm_path", defaults.PDF.PdftoppmPath)
	l.v.SetDefault("pdf.max_concurrent", defaults.PDF.MaxConcurrent)

	l.v.SetDefault("recognition.engine", defaults.Recognition.Engine)
	l.v.SetDefault("recognition.languages", defaults.Recognition.Languages)
	l.v.SetDefault("recognition.model_dir", defaults.Recognition.ModelDir)
	l.v.SetDefault("recognition.level", defaults.Recognition.Level)
	l.v.SetDefault("recognition.endpoint", defaults.Recognition.Endpoint)
	l.v.SetDefault("recognition.timeout_sec", defaults.Recognition.TimeoutSec)

	l.v.SetDefault("concurrency.max_workers", defaults.Concurrency.MaxWorkers)
	l.v.SetDefault("concurrency.max_queue", defaults.Concurrency.MaxQueue)
}

// GenerateDefaultConfigFile writes the defaults to filename (ocrnlp.yaml
// when empty).
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()
	return loader.v.WriteConfigAs(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, filepath.Join("/etc", ConfigFileName))
}
