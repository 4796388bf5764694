package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/middleware"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/ratelimit"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/security"
)

// EnvPrefix prefixes every environment override, e.g. CREDITRISK_SERVER_PORT
const EnvPrefix = "CREDITRISK"

// Config is the full service configuration
type Config struct {
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Gzip      GzipConfig      `mapstructure:"gzip"`
	Log       LogConfig       `mapstructure:"log"`
}

type ArtifactsConfig struct {
	Dir             string   `mapstructure:"dir"`
	ModelCandidates []string `mapstructure:"model_candidates"`
	FeatureNames    string   `mapstructure:"feature_names"`
	EncoderDir      string   `mapstructure:"encoder_dir"`
	EncoderPattern  string   `mapstructure:"encoder_pattern"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

type SecurityConfig struct {
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	EnableHSTS     bool          `mapstructure:"enable_hsts"`
	CSPReportURI   string        `mapstructure:"csp_report_uri"`
}

type GzipConfig struct {
	Enabled bool `mapstructure:"enabled"`
	MinSize int  `mapstructure:"min_size"`
	Level   int  `mapstructure:"level"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every key with its default so env overrides are picked up
func SetDefaults(v *viper.Viper) {
	art := artifacts.DefaultConfig()
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("artifacts.model_candidates", art.ModelCandidates)
	v.SetDefault("artifacts.feature_names", art.FeatureNamesFile)
	v.SetDefault("artifacts.encoder_dir", art.EncoderDir)
	v.SetDefault("artifacts.encoder_pattern", art.EncoderPattern)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl", 30*time.Minute)
	v.SetDefault("server.cors_origins", []string{"http://localhost:8080"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	rl := ratelimit.DefaultConfig()
	v.SetDefault("ratelimit.per_minute", rl.PerMinute)
	v.SetDefault("ratelimit.burst", rl.Burst)

	sec := security.DefaultConfig()
	v.SetDefault("security.max_body_bytes", sec.MaxBodyBytes)
	v.SetDefault("security.request_timeout", sec.RequestTimeout)
	v.SetDefault("security.enable_hsts", false)
	v.SetDefault("security.csp_report_uri", "")

	gz := middleware.DefaultCompressionConfig()
	v.SetDefault("gzip.enabled", true)
	v.SetDefault("gzip.min_size", gz.MinSize)
	v.SetDefault("gzip.level", gz.CompressionLevel)

	v.SetDefault("log.level", "info")
}

// Load reads defaults, the optional config file and CREDITRISK_* environment overrides.
// An explicit cfgFile must exist; otherwise creditrisk.yaml in the working directory is
// used when present.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("creditrisk")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, apperrors.NewConfigurationError("failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, apperrors.NewConfigurationError("failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.SessionTTL <= 0 {
		problems = append(problems, "server.session_ttl must be positive")
	}
	if len(c.Artifacts.ModelCandidates) == 0 {
		problems = append(problems, "artifacts.model_candidates is empty")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		problems = append(problems, "ratelimit.per_minute and ratelimit.burst must be positive")
	}
	if len(problems) > 0 {
		return apperrors.NewConfigurationError(strings.Join(problems, "; "), nil)
	}
	return nil
}

// ArtifactsLoader returns the loader settings
func (c Config) ArtifactsLoader() artifacts.Config {
	cfg := artifacts.DefaultConfig()
	cfg.Dir = c.Artifacts.Dir
	cfg.ModelCandidates = append([]string(nil), c.Artifacts.ModelCandidates...)
	cfg.FeatureNamesFile = c.Artifacts.FeatureNames
	cfg.EncoderDir = c.Artifacts.EncoderDir
	cfg.EncoderPattern = c.Artifacts.EncoderPattern
	return cfg
}

// Limiter returns the rate limiter settings
func (c Config) Limiter() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.PerMinute = c.RateLimit.PerMinute
	cfg.Burst = c.RateLimit.Burst
	return cfg
}

// Hardening returns the request hardening settings
func (c Config) Hardening() security.Config {
	return security.Config{
		MaxBodyBytes:   c.Security.MaxBodyBytes,
		RequestTimeout: c.Security.RequestTimeout,
		EnableHSTS:     c.Security.EnableHSTS,
		CSPReportURI:   c.Security.CSPReportURI,
	}
}

// Compression returns the gzip settings, or nil when compression is off
func (c Config) Compression() *middleware.CompressionConfig {
	if !c.Gzip.Enabled {
		return nil
	}
	cfg := middleware.DefaultCompressionConfig()
	cfg.MinSize = c.Gzip.MinSize
	cfg.CompressionLevel = c.Gzip.Level
	return &cfg
}
