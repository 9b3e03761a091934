package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Default allow-list applied when ALLOWED_EXTENSIONS is not set.
var defaultExtensions = []string{
	"txt", "pdf", "png", "jpg", "jpeg", "gif", "webp", "svg",
	"doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods",
	"zip", "rar", "7z", "tar", "gz",
	"mp3", "mp4", "avi", "mkv", "mov", "flac", "ogg", "wav",
	"csv", "json", "xml", "md", "epub",
}

// Config represents the application configuration. All options are read from
// the environment; unset options fall back to the documented defaults.
type Config struct {
	Port        int    `mapstructure:"PORT"`
	StoragePath string `mapstructure:"STORAGE_PATH"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	APIKey      string `mapstructure:"API_KEY"`

	MaxStorageSizeMB   int64    `mapstructure:"MAX_STORAGE_SIZE_MB"`
	MaxFileSizeMB      int64    `mapstructure:"MAX_FILE_SIZE_MB"`
	MaxFilesPerStorage int      `mapstructure:"MAX_FILES_PER_STORAGE"`
	AllowedExtensions  []string `mapstructure:"-"`
	ExpirationDays     int      `mapstructure:"STORAGE_EXPIRATION_DAYS"`

	MaxRequestsPerMinute int  `mapstructure:"MAX_REQUESTS_PER_MINUTE"`
	MaxFailedAttempts    int  `mapstructure:"MAX_FAILED_ATTEMPTS"`
	BlockTimeSeconds     int  `mapstructure:"BLOCK_TIME_SECONDS"`
	CSRFEnabled          bool `mapstructure:"CSRF_PROTECTION_ENABLED"`

	SweepIntervalSeconds int `mapstructure:"SWEEP_INTERVAL_SECONDS"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("STORAGE_PATH", "./temp_storage")
	v.SetDefault("SQLITE_PATH", "./stash.db")
	v.SetDefault("API_KEY", "")
	v.SetDefault("MAX_STORAGE_SIZE_MB", 500)
	v.SetDefault("MAX_FILE_SIZE_MB", 500)
	v.SetDefault("MAX_FILES_PER_STORAGE", 0)
	v.SetDefault("ALLOWED_EXTENSIONS", "")
	v.SetDefault("STORAGE_EXPIRATION_DAYS", 7)
	v.SetDefault("MAX_REQUESTS_PER_MINUTE", 60)
	v.SetDefault("MAX_FAILED_ATTEMPTS", 5)
	v.SetDefault("BLOCK_TIME_SECONDS", 300)
	v.SetDefault("CSRF_PROTECTION_ENABLED", true)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 60)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.AllowedExtensions = parseExtensions(v.GetString("ALLOWED_EXTENSIONS"))
	return &cfg, nil
}

// parseExtensions splits a comma list into normalized extensions without the
// leading dot. An empty list yields the default allow-list.
func parseExtensions(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return defaultExtensions
	}

	var exts []string
	for _, e := range strings.Split(raw, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		e = strings.TrimPrefix(e, ".")
		if e != "" {
			exts = append(exts, e)
		}
	}
	if len(exts) == 0 {
		return defaultExtensions
	}
	return exts
}

func (c *Config) MaxStorageBytes() int64 {
	return c.MaxStorageSizeMB * 1024 * 1024
}

func (c *Config) MaxFileBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}
