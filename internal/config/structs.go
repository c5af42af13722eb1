//nolint:lll
package config

// Config represents the complete configuration for the ocrnlp service and
// CLI. It is loaded from a configuration file, environment variables and
// command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// HTTP server configuration (serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// PDF rasterization
	PDF PDFConfig `mapstructure:"pdf" yaml:"pdf" json:"pdf"`

	// Recognition engine
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition" json:"recognition"`

	// Worker limits shared by all requests
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string `mapstructure:"host" yaml:"host" json:"host"`
	Port              int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB       int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec        int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimitEnabled  bool   `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int    `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int    `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int    `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// PDFConfig contains rasterization settings.
type PDFConfig struct {
	MaxPages      int    `mapstructure:"max_pages" yaml:"max_pages" json:"max_pages"`
	DPI           int    `mapstructure:"dpi" yaml:"dpi" json:"dpi"`
	Backend       string `mapstructure:"backend" yaml:"backend" json:"backend"`
	PdftoppmPath  string `mapstructure:"pdftoppm_path" yaml:"pdftoppm_path" json:"pdftoppm_path"`
	MaxConcurrent int    `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`
}

// RecognitionConfig selects and configures the recognition engine.
type RecognitionConfig struct {
	Engine     string   `mapstructure:"engine" yaml:"engine" json:"engine"`
	Languages  []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	ModelDir   string   `mapstructure:"model_dir" yaml:"model_dir" json:"model_dir"`
	Level      string   `mapstructure:"level" yaml:"level" json:"level"`
	Endpoint   string   `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	TimeoutSec int      `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// ConcurrencyConfig bounds concurrent recognition calls.
type ConcurrencyConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
	MaxQueue   int `mapstructure:"max_queue" yaml:"max_queue" json:"max_queue"`
}
