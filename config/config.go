package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/aluiziolira/go-scrape-vitibrasil/models"
)

// EnvPrefix namespaces every environment override, e.g. VITIBRASIL_PARALLELISM.
const EnvPrefix = "VITIBRASIL"

// Config holds scraper configuration.
type Config struct {
	BaseURL          string        `envconfig:"BASE_URL"`
	YearFrom         int           `envconfig:"YEAR_FROM"`
	YearTo           int           `envconfig:"YEAR_TO"`
	Categories       []string      `envconfig:"CATEGORIES"`
	Parallelism      int           `envconfig:"PARALLELISM"`
	Timeout          time.Duration `envconfig:"TIMEOUT"`
	MaxRetries       int           `envconfig:"MAX_RETRIES"`
	RetryBackoff     time.Duration `envconfig:"RETRY_BACKOFF"`
	RetryBackoffMax  time.Duration `envconfig:"RETRY_BACKOFF_MAX"`
	OutputDir        string        `envconfig:"OUTPUT_DIR"`
	OutputFormat     string        `envconfig:"OUTPUT_FORMAT"` // csv, json, xlsx, or dual
	UserAgent        string        `envconfig:"USER_AGENT"`
	Verbose          bool          `envconfig:"VERBOSE"`
	RespectRobotsTxt bool          `envconfig:"RESPECT_ROBOTS"`
	MetricsAddr      string        `envconfig:"METRICS_ADDR"`
}

// DefaultConfig returns the settings of a full historical run.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "http://vitibrasil.cnpuv.embrapa.br/index.php",
		YearFrom:         1970,
		YearTo:           2023,
		Parallelism:      4,
		Timeout:          30 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     500 * time.Millisecond,
		RetryBackoffMax:  5 * time.Second,
		OutputDir:        "./tabelas",
		OutputFormat:     "csv",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// FromEnv overlays VITIBRASIL_* variables onto cfg. Unset variables keep
// their current value.
func FromEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.YearFrom <= 0 || c.YearTo <= 0 {
		return fmt.Errorf("year range must be positive")
	}
	if c.YearFrom > c.YearTo {
		return fmt.Errorf("year range start (%d) cannot exceed end (%d)", c.YearFrom, c.YearTo)
	}
	if _, err := models.LookupCategories(c.Categories); err != nil {
		return fmt.Errorf("categories: %w", err)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "xlsx", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, xlsx, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
