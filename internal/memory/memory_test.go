package memory

import (
	"runtime/debug"
	"testing"
)

func TestConfigureFromEnvNoLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")

	result := ConfigureFromEnv()
	if result.Configured {
		t.Error("Expected no configuration without env vars")
	}
	if result.Source != "none" {
		t.Errorf("Expected source none, got %q", result.Source)
	}
}

func TestConfigureFromEnvMemoryLimit(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1073741824")
	t.Setenv("MEMORY_RATIO", "")

	result := ConfigureFromEnv()
	if !result.Configured {
		t.Fatal("Expected configuration from MEMORY_LIMIT")
	}
	if result.Source != "MEMORY_LIMIT" {
		t.Errorf("Expected source MEMORY_LIMIT, got %q", result.Source)
	}
	if result.ContainerLimit != 1073741824 {
		t.Errorf("Expected container limit 1 GiB, got %d", result.ContainerLimit)
	}

	// 80% of the container limit is reserved for the Go heap
	limit := int64(1073741824)
	want := int64(float64(limit) * DefaultMemoryRatio)
	if result.GoMemLimit != want {
		t.Errorf("Expected GOMEMLIMIT %d, got %d", want, result.GoMemLimit)
	}
}

func TestConfigureFromEnvInvalidValues(t *testing.T) {
	prev := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(prev)

	t.Setenv("GOMEMLIMIT", "")

	t.Run("Unparseable limit", func(t *testing.T) {
		t.Setenv("MEMORY_LIMIT", "lots")
		result := ConfigureFromEnv()
		if result.Configured {
			t.Error("Expected unparseable MEMORY_LIMIT to be ignored")
		}
	})

	t.Run("Out of range ratio falls back", func(t *testing.T) {
		t.Setenv("MEMORY_LIMIT", "1048576")
		t.Setenv("MEMORY_RATIO", "1.5")
		result := ConfigureFromEnv()
		if result.Ratio != DefaultMemoryRatio {
			t.Errorf("Expected default ratio %.2f, got %.2f", DefaultMemoryRatio, result.Ratio)
		}
	})
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("Expected %q for %d, got %q", tt.want, tt.bytes, got)
		}
	}
}

func TestMonitorNotPausedByDefault(t *testing.T) {
	m := NewMonitor(DefaultConfig())

	if m.IsPaused() {
		t.Error("Expected new monitor to start unpaused")
	}
	if usage := m.GetUsage(); usage < 0 {
		t.Errorf("Expected non-negative usage, got %f", usage)
	}
}
