package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"static-server/internal/logging"

	"github.com/spf13/viper"
)

// DefaultSessionSecret is used when no secret is configured. It is only
// suitable for development.
const DefaultSessionSecret = "not very secret, uh?"

// Config holds all application configuration. It is loaded once by
// LoadConfig and must not be modified afterwards.
type Config struct {
	Port      string `mapstructure:"port"`
	PublicDir string `mapstructure:"public_dir"`

	SessionSecret string `mapstructure:"session_secret"`
	SessionSecure bool   `mapstructure:"session_secure"`

	TrustProxy      bool          `mapstructure:"trust_proxy"`
	LogLevel        string        `mapstructure:"log_level"`
	Debug           bool          `mapstructure:"debug"`
	LogSkipPaths    []string      `mapstructure:"log_skip_paths"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	CompressSkipExtensions []string `mapstructure:"compress_skip_extensions"`
	CompressMinSize        int      `mapstructure:"compress_min_size"`
	BodyLimit              int64    `mapstructure:"body_limit"`

	MinifyCache    bool          `mapstructure:"minify_cache"`
	MinifyCacheTTL time.Duration `mapstructure:"minify_cache_ttl"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPort    string `mapstructure:"metrics_port"`

	// ConfigFile is the file the values were read from, if any.
	ConfigFile string `mapstructure:"-"`
}

// SetDefaults registers every configuration key with its default value.
// Keys map one-to-one onto upper-cased environment variables.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "5000")
	v.SetDefault("public_dir", "./public")

	v.SetDefault("session_secret", DefaultSessionSecret)
	v.SetDefault("session_secure", false)

	v.SetDefault("trust_proxy", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
	v.SetDefault("log_skip_paths", []string{"/myip"})
	v.SetDefault("shutdown_timeout", "30s")

	v.SetDefault("compress_skip_extensions", []string{".jpg", ".png"})
	v.SetDefault("compress_min_size", 1024)
	v.SetDefault("body_limit", 100<<10)

	v.SetDefault("minify_cache", false)
	v.SetDefault("minify_cache_ttl", "10m")

	v.SetDefault("metrics_enabled", true)
	v.SetDefault("metrics_port", "9090")
}

// NewViper returns a viper instance with defaults, environment binding and
// the config file search path set up. Callers may bind flags on it before
// passing it to LoadConfig.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("static-server")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/static-server/")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the optional config file, applies environment and flag
// overrides already bound on v, validates the result and logs it.
// configFile, when set, replaces the search path.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := readConfig(v, configFile)
	if err != nil {
		return nil, err
	}

	applyLogLevel(config)

	if config.ConfigFile != "" {
		logging.Info("  Config file:              %s", config.ConfigFile)
	} else {
		logging.Info("  Config file:              (none, using defaults and environment)")
	}
	logging.Info("  PORT:                     %s", config.Port)
	logging.Info("  PUBLIC_DIR:               %s", config.PublicDir)
	logging.Info("  SESSION_SECURE:           %v", config.SessionSecure)
	logging.Info("  TRUST_PROXY:              %v", config.TrustProxy)
	logging.Info("  LOG_LEVEL:                %s", logging.GetLevel())
	logging.Info("  LOG_SKIP_PATHS:           %s", strings.Join(config.LogSkipPaths, ", "))
	logging.Info("  COMPRESS_SKIP_EXTENSIONS: %s", strings.Join(config.CompressSkipExtensions, ", "))
	logging.Info("  MINIFY_CACHE:             %v", config.MinifyCache)
	logging.Info("  METRICS_ENABLED:          %v", config.MetricsEnabled)
	logging.Info("  METRICS_PORT:             %s", config.MetricsPort)

	if config.SessionSecret == DefaultSessionSecret {
		logging.Warn("  SESSION_SECRET is not set; using the built-in development secret")
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Public directory (absolute): %s", config.PublicDir)

	// A missing public directory is not fatal: every request falls through
	// to the not-found responder.
	if err := checkDirectory(config.PublicDir); err != nil {
		logging.Warn("  Public directory issue: %v", err)
	} else {
		logging.Info("  [OK] Public directory exists")
	}

	return config, nil
}

// readConfig does the viper work of LoadConfig without any logging.
func readConfig(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	publicDir, err := filepath.Abs(config.PublicDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve public directory path: %w", err)
	}
	config.PublicDir = publicDir

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if err := validatePort("port", c.Port); err != nil {
		return err
	}
	if c.MetricsEnabled {
		if err := validatePort("metrics_port", c.MetricsPort); err != nil {
			return err
		}
		if c.MetricsPort == c.Port {
			return fmt.Errorf("metrics_port must differ from port (both %s)", c.Port)
		}
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		return errors.New("session_secret must not be empty")
	}
	if c.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got %d", c.BodyLimit)
	}
	if c.CompressMinSize < 0 {
		return fmt.Errorf("compress_min_size must not be negative, got %d", c.CompressMinSize)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}

func validatePort(key, value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%s must be a TCP port number, got %q", key, value)
	}
	return nil
}

// applyLogLevel makes the configured level effective. DEBUG wins over
// LOG_LEVEL, matching the logging package's own environment handling.
func applyLogLevel(c *Config) {
	if c.Debug {
		logging.SetLevel(logging.LevelDebug)
		return
	}
	level, ok := logging.ParseLevel(c.LogLevel)
	if !ok {
		logging.Warn("  Invalid LOG_LEVEL %q, using default: info", c.LogLevel)
	}
	logging.SetLevel(level)
}

func checkDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	if logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(path); err == nil {
			logging.Debug("    Contents: %d entries (top level)", len(entries))
		}
	}
	return nil
}
