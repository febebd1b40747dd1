package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"sticker-press/internal/logging"
	"sticker-press/internal/resultcache"
	"sticker-press/internal/sticker"
)

// Config holds all application configuration
type Config struct {
	Port        string
	MetricsPort string
	WorkDir     string

	CacheEntries int
	CacheMaxAge  time.Duration

	DesktopMaxBytes int64
	MobileMaxBytes  int64

	JobTTL         time.Duration
	ConvertTimeout time.Duration

	LogStaticFiles  bool
	LogHealthChecks bool
	MetricsEnabled  bool

	// Derived paths
	UploadDir  string
	SessionDir string
}

// fileConfig mirrors Config for the optional TOML config file. Environment
// variables override file values.
type fileConfig struct {
	Port            string `toml:"port"`
	MetricsPort     string `toml:"metrics_port"`
	WorkDir         string `toml:"work_dir"`
	CacheEntries    int    `toml:"cache_entries"`
	CacheMaxAge     string `toml:"cache_max_age"`
	DesktopMaxBytes int64  `toml:"desktop_max_bytes"`
	MobileMaxBytes  int64  `toml:"mobile_max_bytes"`
	JobTTL          string `toml:"job_ttl"`
	ConvertTimeout  string `toml:"convert_timeout"`
}

// LoadConfig loads and validates configuration. An optional TOML file named
// by CONFIG_FILE supplies defaults; environment variables take precedence.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	fc, err := loadConfigFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cacheDefaults := resultcache.DefaultConfig()

	port := getEnv("PORT", orDefault(fc.Port, "8080"))
	metricsPort := getEnv("METRICS_PORT", orDefault(fc.MetricsPort, "9090"))
	workDir := getEnv("WORK_DIR", orDefault(fc.WorkDir, filepath.Join(os.TempDir(), "sticker-press")))
	cacheEntries := getEnvInt("MAX_CACHE_SIZE", orDefaultInt(fc.CacheEntries, cacheDefaults.MaxEntries))
	cacheMaxAge := getEnvDuration("MAX_CACHE_AGE", orDefaultDuration(fc.CacheMaxAge, cacheDefaults.MaxAge))
	desktopMax := getEnvInt64("DESKTOP_MAX_BYTES", orDefaultInt64(fc.DesktopMaxBytes, sticker.DefaultDesktopMaxBytes))
	mobileMax := getEnvInt64("MOBILE_MAX_BYTES", orDefaultInt64(fc.MobileMaxBytes, sticker.DefaultMobileMaxBytes))
	jobTTL := getEnvDuration("JOB_TTL", orDefaultDuration(fc.JobTTL, time.Hour))
	convertTimeout := getEnvDuration("CONVERT_TIMEOUT", orDefaultDuration(fc.ConvertTimeout, 2*time.Minute))
	logStaticFiles := getEnvBool("LOG_STATIC_FILES", false)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)

	logging.Info("  PORT:               %s", port)
	logging.Info("  METRICS_PORT:       %s", metricsPort)
	logging.Info("  METRICS_ENABLED:    %v", metricsEnabled)
	logging.Info("  WORK_DIR:           %s", workDir)
	logging.Info("  MAX_CACHE_SIZE:     %d", cacheEntries)
	logging.Info("  MAX_CACHE_AGE:      %s", cacheMaxAge)
	logging.Info("  DESKTOP_MAX_BYTES:  %d", desktopMax)
	logging.Info("  MOBILE_MAX_BYTES:   %d", mobileMax)
	logging.Info("  JOB_TTL:            %s", jobTTL)
	logging.Info("  CONVERT_TIMEOUT:    %s", convertTimeout)
	logging.Info("  LOG_STATIC_FILES:   %v", logStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:  %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:          %s", logging.GetLevel())

	if cacheEntries <= 0 {
		return nil, fmt.Errorf("MAX_CACHE_SIZE must be positive, got %d", cacheEntries)
	}
	if cacheMaxAge <= 0 {
		return nil, fmt.Errorf("MAX_CACHE_AGE must be positive, got %v", cacheMaxAge)
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory path: %w", err)
	}
	logging.Info("  Work directory (absolute): %s", workDir)

	config := &Config{
		Port:            port,
		MetricsPort:     metricsPort,
		WorkDir:         workDir,
		CacheEntries:    cacheEntries,
		CacheMaxAge:     cacheMaxAge,
		DesktopMaxBytes: desktopMax,
		MobileMaxBytes:  mobileMax,
		JobTTL:          jobTTL,
		ConvertTimeout:  convertTimeout,
		LogStaticFiles:  logStaticFiles,
		LogHealthChecks: logHealthChecks,
		MetricsEnabled:  metricsEnabled,
		UploadDir:       filepath.Join(workDir, "uploads"),
		SessionDir:      filepath.Join(workDir, "sessions"),
	}

	for _, dir := range []struct{ path, name string }{
		{config.UploadDir, "upload"},
		{config.SessionDir, "session"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	return config, nil
}

// loadConfigFile reads an optional TOML config file. A missing path is not
// an error; a named but unreadable or invalid file is.
func loadConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	logging.Info("  Loaded config file: %s", path)
	return fc, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultInt64(v, def int64) int64 {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logging.Warn("  Invalid duration %q in config file, using default: %v", v, def)
		return def
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Write access was confirmed, so don't fail
	}
	return nil
}
