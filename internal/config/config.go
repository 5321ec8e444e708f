package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DefaultBaseURL   = "https://civitai.com/api/v1"
	DefaultUserAgent = "Civitai-Data-Fetcher/1.0"
	DefaultUsername  = "moutonrebelle"
)

type Config struct {
	Civitai    CivitaiConfig    `yaml:"civitai"`
	Output     OutputConfig     `yaml:"output"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
}

type CivitaiConfig struct {
	BaseURL   string `yaml:"base_url"`
	Username  string `yaml:"username"`
	Token     string `yaml:"token"`
	UserAgent string `yaml:"user_agent"`
	// Timeout in seconds for every request. Zero keeps the transport default (none).
	Timeout int `yaml:"timeout"`
}

type OutputConfig struct {
	ImagesDir         string `yaml:"images_dir"`
	NSFWImagesDir     string `yaml:"nsfw_images_dir"`
	SFWPromptsFile    string `yaml:"sfw_prompts_file"`
	NSFWPromptsFile   string `yaml:"nsfw_prompts_file"`
	ExcludedWordsFile string `yaml:"excluded_words_file"`
	QuarantineDir     string `yaml:"quarantine_dir"`
	LockFile          string `yaml:"lock_file"`
}

// DatabaseConfig configures the optional image catalog. An empty Driver disables it.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite3"
	Path     string `yaml:"path"`   // sqlite3 only
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.Driver != ""
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MonitoringConfig struct {
	MetricsFile string `yaml:"metrics_file"`
}

type ScheduleConfig struct {
	Cron        string `yaml:"cron"`
	Incremental bool   `yaml:"incremental"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Civitai: CivitaiConfig{
			BaseURL:   DefaultBaseURL,
			Username:  DefaultUsername,
			UserAgent: DefaultUserAgent,
		},
		Output: OutputConfig{
			ImagesDir:         "images",
			NSFWImagesDir:     "images_nsfw",
			SFWPromptsFile:    "prompts_sfw.txt",
			NSFWPromptsFile:   "prompts_nsfw.txt",
			ExcludedWordsFile: "excluded_words.txt",
			QuarantineDir:     "temp",
			LockFile:          ".scraper.lock",
		},
		Database: DatabaseConfig{
			Path:    "images.db",
			Port:    5432,
			SSLMode: "disable",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Monitoring: MonitoringConfig{
			MetricsFile: "data/metrics.json",
		},
	}
}

// Load reads configFile on top of the defaults and applies environment
// overrides. A missing configFile is not an error; the token and username are
// normally supplied through the environment.
func Load(configFile string) (*Config, error) {
	// .env file is optional
	_ = godotenv.Load()

	config := Default()

	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults + environment only
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Civitai.Token, "CIVITAI_TOKEN")
	overrideString(&c.Civitai.Username, "CIVITAI_USERNAME")
	overrideString(&c.Civitai.BaseURL, "CIVITAI_BASE_URL")

	overrideString(&c.Database.Driver, "DB_DRIVER")
	overrideString(&c.Database.Path, "DB_PATH")
	overrideString(&c.Database.Host, "DB_HOST")
	overrideString(&c.Database.User, "DB_USER")
	overrideString(&c.Database.Password, "DB_PASSWORD")
	overrideString(&c.Database.Name, "DB_NAME")
	overrideString(&c.Database.SSLMode, "DB_SSL_MODE")
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Database.Port = p
		}
	}

	overrideString(&c.Logging.Level, "LOG_LEVEL")
}

func overrideString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

// Validate checks the settings a harvest run cannot do without.
func (c *Config) Validate() error {
	if c.Civitai.Username == "" {
		return errors.New("civitai username is required (CIVITAI_USERNAME)")
	}
	if c.Civitai.BaseURL == "" {
		return errors.New("civitai base_url is required")
	}
	if c.Output.ImagesDir == "" || c.Output.NSFWImagesDir == "" {
		return errors.New("output image directories are required")
	}
	if c.Output.ImagesDir == c.Output.NSFWImagesDir {
		return fmt.Errorf("images_dir and nsfw_images_dir must differ (both %q)", c.Output.ImagesDir)
	}
	switch c.Database.Driver {
	case "", "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}
