package startup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_GET_ENV", "custom")

	if got := getEnv("TEST_GET_ENV", "default"); got != "custom" {
		t.Errorf("Expected custom, got %s", got)
	}
	if got := getEnv("TEST_GET_ENV_UNSET", "default"); got != "default" {
		t.Errorf("Expected default, got %s", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   bool
		want  bool
	}{
		{name: "True value", value: "true", def: false, want: true},
		{name: "False value", value: "false", def: true, want: false},
		{name: "Numeric true", value: "1", def: false, want: true},
		{name: "Invalid falls back to default", value: "banana", def: true, want: true},
		{name: "Empty falls back to default", value: "", def: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_GET_ENV_BOOL", tt.value)
			if got := getEnvBool("TEST_GET_ENV_BOOL", tt.def); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_GET_ENV_INT", "42")
	if got := getEnvInt("TEST_GET_ENV_INT", 7); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}

	t.Setenv("TEST_GET_ENV_INT", "not-a-number")
	if got := getEnvInt("TEST_GET_ENV_INT", 7); got != 7 {
		t.Errorf("Expected fallback 7, got %d", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_GET_ENV_DUR", "45m")
	if got := getEnvDuration("TEST_GET_ENV_DUR", time.Hour); got != 45*time.Minute {
		t.Errorf("Expected 45m, got %v", got)
	}

	t.Setenv("TEST_GET_ENV_DUR", "soon")
	if got := getEnvDuration("TEST_GET_ENV_DUR", time.Hour); got != time.Hour {
		t.Errorf("Expected fallback 1h, got %v", got)
	}
}

func TestOrDefaultHelpers(t *testing.T) {
	if got := orDefault("", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %s", got)
	}
	if got := orDefault("set", "fallback"); got != "set" {
		t.Errorf("Expected set, got %s", got)
	}
	if got := orDefaultInt(0, 10); got != 10 {
		t.Errorf("Expected 10, got %d", got)
	}
	if got := orDefaultInt64(25<<20, 50<<20); got != 25<<20 {
		t.Errorf("Expected file value to win, got %d", got)
	}
	if got := orDefaultDuration("", time.Minute); got != time.Minute {
		t.Errorf("Expected 1m, got %v", got)
	}
	if got := orDefaultDuration("30s", time.Minute); got != 30*time.Second {
		t.Errorf("Expected 30s, got %v", got)
	}
	if got := orDefaultDuration("garbage", time.Minute); got != time.Minute {
		t.Errorf("Expected fallback 1m, got %v", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
port = "9999"
cache_entries = 5
cache_max_age = "10m"
desktop_max_bytes = 1048576
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := loadConfigFile(path)
	if err != nil {
		t.Fatalf("Expected config file to load, got %v", err)
	}
	if fc.Port != "9999" {
		t.Errorf("Expected port 9999, got %s", fc.Port)
	}
	if fc.CacheEntries != 5 {
		t.Errorf("Expected 5 cache entries, got %d", fc.CacheEntries)
	}
	if fc.CacheMaxAge != "10m" {
		t.Errorf("Expected cache_max_age 10m, got %s", fc.CacheMaxAge)
	}
	if fc.DesktopMaxBytes != 1048576 {
		t.Errorf("Expected 1048576 bytes, got %d", fc.DesktopMaxBytes)
	}
}

func TestLoadConfigFileMissingPath(t *testing.T) {
	if _, err := loadConfigFile(""); err != nil {
		t.Errorf("Expected no error for unset config file, got %v", err)
	}

	if _, err := loadConfigFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Expected error for named but missing config file")
	}
}

func TestLoadConfigFileInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("port = [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadConfigFile(path); err == nil {
		t.Error("Expected error for invalid TOML")
	}
}

func TestEnsureDirectory(t *testing.T) {
	base := t.TempDir()

	// Creates a missing directory
	dir := filepath.Join(base, "uploads")
	if err := ensureDirectory(dir, "upload"); err != nil {
		t.Fatalf("Expected directory creation to succeed, got %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Error("Expected directory to exist after ensureDirectory")
	}

	// Accepts an existing directory
	if err := ensureDirectory(dir, "upload"); err != nil {
		t.Errorf("Expected existing directory to be accepted, got %v", err)
	}

	// Rejects a file at the path
	file := filepath.Join(base, "occupied")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ensureDirectory(file, "upload"); err == nil {
		t.Error("Expected error when path is a file")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("WORK_DIR", t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	for _, key := range []string{"PORT", "METRICS_PORT", "MAX_CACHE_SIZE", "MAX_CACHE_AGE", "JOB_TTL", "CONVERT_TIMEOUT"} {
		t.Setenv(key, "")
	}

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	if config.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", config.Port)
	}
	if config.CacheEntries != 10 {
		t.Errorf("Expected default cache size 10, got %d", config.CacheEntries)
	}
	if config.CacheMaxAge != 30*time.Minute {
		t.Errorf("Expected default cache age 30m, got %v", config.CacheMaxAge)
	}
	if config.JobTTL != time.Hour {
		t.Errorf("Expected default job TTL 1h, got %v", config.JobTTL)
	}
	if filepath.Base(config.UploadDir) != "uploads" {
		t.Errorf("Expected uploads subdirectory, got %s", config.UploadDir)
	}
	if filepath.Base(config.SessionDir) != "sessions" {
		t.Errorf("Expected sessions subdirectory, got %s", config.SessionDir)
	}
}

func TestLoadConfigRejectsInvalidCache(t *testing.T) {
	t.Setenv("WORK_DIR", t.TempDir())
	t.Setenv("MAX_CACHE_SIZE", "-1")

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error for negative cache size")
	}
}
