package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_DefaultValues(t *testing.T) {
	// Reset viper for clean test
	viper.Reset()

	tests := []struct {
		name     string
		field    string
		expected interface{}
	}{
		{"TickHz", "TickHz", 20},
		{"Port", "Port", 3000},
		{"DefaultScene", "DefaultScene", "default"},
		{"MasterVolumeLimit", "MasterVolumeLimit", 1.0},
		{"AudioBlockFrames", "AudioBlockFrames", 512},
		{"HighLatencyAudio", "HighLatencyAudio", false},
		{"EventQueueCapacity", "EventQueueCapacity", 256},
		{"SnapshotCacheHz", "SnapshotCacheHz", 10.0},
	}

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Get()
			var actual interface{}
			switch tt.field {
			case "TickHz":
				actual = cfg.TickHz
			case "Port":
				actual = cfg.Port
			case "DefaultScene":
				actual = cfg.DefaultScene
			case "MasterVolumeLimit":
				actual = cfg.MasterVolumeLimit
			case "AudioBlockFrames":
				actual = cfg.AudioBlockFrames
			case "HighLatencyAudio":
				actual = cfg.HighLatencyAudio
			case "EventQueueCapacity":
				actual = cfg.EventQueueCapacity
			case "SnapshotCacheHz":
				actual = cfg.SnapshotCacheHz
			}
			if actual != tt.expected {
				t.Errorf("Config.%s = %v, want %v", tt.field, actual, tt.expected)
			}
		})
	}
}

func TestLoad_TOMLParsing(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configData := `
TickHz = 30
Port = 8080
DefaultScene = "energetic"
MasterVolumeLimit = 0.9
AudioBlockFrames = 256
HighLatencyAudio = true
EventQueueCapacity = 512
SnapshotCacheHz = 15.0
`

	if err := os.WriteFile(configPath, []byte(configData), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Reset viper and set config path
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	// Set defaults before loading
	viper.SetDefault("TickHz", 20)
	viper.SetDefault("Port", 3000)
	viper.SetDefault("DefaultScene", "default")
	viper.SetDefault("MasterVolumeLimit", 1.0)
	viper.SetDefault("AudioBlockFrames", 512)
	viper.SetDefault("HighLatencyAudio", false)
	viper.SetDefault("EventQueueCapacity", 256)
	viper.SetDefault("SnapshotCacheHz", 10.0)

	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("viper.ReadInConfig() failed: %v", err)
	}

	if err := viper.Unmarshal(&C); err != nil {
		t.Fatalf("viper.Unmarshal() failed: %v", err)
	}

	cfg := Get()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"TickHz", cfg.TickHz, 30},
		{"Port", cfg.Port, 8080},
		{"DefaultScene", cfg.DefaultScene, "energetic"},
		{"MasterVolumeLimit", cfg.MasterVolumeLimit, 0.9},
		{"AudioBlockFrames", cfg.AudioBlockFrames, 256},
		{"HighLatencyAudio", cfg.HighLatencyAudio, true},
		{"EventQueueCapacity", cfg.EventQueueCapacity, 512},
		{"SnapshotCacheHz", cfg.SnapshotCacheHz, 15.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Config.%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestLoad_MissingFileFallback(t *testing.T) {
	// Reset viper with a non-existent path
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/nonexistent/path")

	// Should not error, just use defaults
	if err := Load(); err != nil {
		t.Errorf("Load() with missing file should not error, got: %v", err)
	}

	cfg := Get()
	if cfg.TickHz != 20 {
		t.Errorf("Default TickHz = %d, want 20", cfg.TickHz)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	// Reset viper
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	// Load defaults
	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Modify config
	cfg := Config{
		TickHz:             30,
		Port:               8080,
		DefaultScene:       "mysterious",
		MasterVolumeLimit:  0.5,
		AudioBlockFrames:   1024,
		HighLatencyAudio:   true,
		EventQueueCapacity: 128,
		SnapshotCacheHz:    5.0,
	}
	Set(cfg)

	// Save config manually via viper
	viper.Set("TickHz", cfg.TickHz)
	viper.Set("Port", cfg.Port)
	viper.Set("DefaultScene", cfg.DefaultScene)
	viper.Set("MasterVolumeLimit", cfg.MasterVolumeLimit)
	viper.Set("AudioBlockFrames", cfg.AudioBlockFrames)
	viper.Set("HighLatencyAudio", cfg.HighLatencyAudio)
	viper.Set("EventQueueCapacity", cfg.EventQueueCapacity)
	viper.Set("SnapshotCacheHz", cfg.SnapshotCacheHz)

	if err := viper.WriteConfigAs(configPath); err != nil {
		t.Fatalf("viper.WriteConfigAs() failed: %v", err)
	}

	// Reset and reload
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() after save failed: %v", err)
	}

	newCfg := Get()
	if newCfg.TickHz != 30 {
		t.Errorf("TickHz = %d, want 30", newCfg.TickHz)
	}
	if newCfg.DefaultScene != "mysterious" {
		t.Errorf("DefaultScene = %s, want mysterious", newCfg.DefaultScene)
	}
	if newCfg.MasterVolumeLimit != 0.5 {
		t.Errorf("MasterVolumeLimit = %f, want 0.5", newCfg.MasterVolumeLimit)
	}
}

func TestWatch_HotReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	// Create initial config
	initialData := `
TickHz = 20
Port = 3000
DefaultScene = "default"
`
	if err := os.WriteFile(configPath, []byte(initialData), 0o644); err != nil {
		t.Fatalf("Failed to write initial config: %v", err)
	}

	// Reset viper completely - critical for test isolation
	viper.Reset()

	// Reset global C to zero state to avoid pollution from other tests
	mu.Lock()
	C = Config{}
	mu.Unlock()

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	// Set defaults
	viper.SetDefault("TickHz", 20)
	viper.SetDefault("Port", 3000)
	viper.SetDefault("DefaultScene", "default")

	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("viper.ReadInConfig() failed: %v", err)
	}

	mu.Lock()
	if err := viper.Unmarshal(&C); err != nil {
		mu.Unlock()
		t.Fatalf("viper.Unmarshal() failed: %v", err)
	}
	mu.Unlock()

	// Verify initial state
	initialCfg := Get()
	if initialCfg.TickHz != 20 {
		t.Fatalf("Initial TickHz = %d, want 20", initialCfg.TickHz)
	}

	// Track callback invocations
	var callbackCalled bool
	var newCfg Config
	var cbMu sync.Mutex

	callback := func(old, new Config) {
		cbMu.Lock()
		callbackCalled = true
		newCfg = new
		cbMu.Unlock()
		t.Logf("Hot-reload callback invoked: old.TickHz=%d, new.TickHz=%d", old.TickHz, new.TickHz)
	}

	// Start watching
	stop, err := Watch(callback)
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}
	defer stop()

	// Give fsnotify time to set up
	time.Sleep(100 * time.Millisecond)

	// Modify config file
	modifiedData := `
TickHz = 30
Port = 8080
DefaultScene = "energetic"
`
	if err := os.WriteFile(configPath, []byte(modifiedData), 0o644); err != nil {
		t.Fatalf("Failed to write modified config: %v", err)
	}

	// Wait for fsnotify to detect change
	time.Sleep(500 * time.Millisecond)

	cbMu.Lock()
	called := callbackCalled
	cbMu.Unlock()

	if !called {
		t.Error("Callback was not called after config change")
		return
	}

	// Check that new config passed to callback has the updated values
	cbMu.Lock()
	if newCfg.TickHz != 30 {
		t.Errorf("Callback new.TickHz = %d, want 30", newCfg.TickHz)
	}
	if newCfg.DefaultScene != "energetic" {
		t.Errorf("Callback new.DefaultScene = %s, want energetic", newCfg.DefaultScene)
	}
	cbMu.Unlock()

	// Check global config was updated to new values
	cfg := Get()
	if cfg.TickHz != 30 {
		t.Errorf("Global TickHz = %d, want 30", cfg.TickHz)
	}
	if cfg.Port != 8080 {
		t.Errorf("Global Port = %d, want 8080", cfg.Port)
	}
	if cfg.DefaultScene != "energetic" {
		t.Errorf("Global DefaultScene = %s, want energetic", cfg.DefaultScene)
	}
}

func TestWatch_NilCallback(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	initialData := `TickHz = 20`
	if err := os.WriteFile(configPath, []byte(initialData), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Watch with nil callback should not panic
	stop, err := Watch(nil)
	if err != nil {
		t.Fatalf("Watch(nil) failed: %v", err)
	}
	defer stop()

	time.Sleep(100 * time.Millisecond)

	// Modify config
	modifiedData := `TickHz = 30`
	if err := os.WriteFile(configPath, []byte(modifiedData), 0o644); err != nil {
		t.Fatalf("Failed to write modified config: %v", err)
	}

	// Wait for change to be processed
	time.Sleep(500 * time.Millisecond)

	// Config should still be updated
	cfg := Get()
	if cfg.TickHz != 30 {
		t.Errorf("TickHz = %d, want 30", cfg.TickHz)
	}
}

func TestGetSet_Concurrency(t *testing.T) {
	// Reset viper
	viper.Reset()
	if err := Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	var wg sync.WaitGroup
	iterations := 100

	// Concurrent readers
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				_ = Get()
			}
		}()
	}

	// Concurrent writers
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				cfg := Get()
				cfg.Port = 3000 + id
				Set(cfg)
			}
		}(i)
	}

	wg.Wait()

	// Should not panic or race
	cfg := Get()
	if cfg.Port < 3000 || cfg.Port >= 3010 {
		t.Logf("Final Port = %d (expected in range [3000, 3010))", cfg.Port)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	// Write invalid TOML
	invalidData := `
TickHz = "not a number"
[[[invalid structure
`
	if err := os.WriteFile(configPath, []byte(invalidData), 0o644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(tmpDir)

	// Should return error for invalid TOML
	err := Load()
	if err == nil {
		t.Error("Load() should return error for invalid TOML")
	}
}

func BenchmarkGet(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Get()
	}
}

func BenchmarkSet(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	cfg := Get()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Set(cfg)
	}
}

func BenchmarkGetSet_Concurrent(b *testing.B) {
	viper.Reset()
	if err := Load(); err != nil {
		b.Fatalf("Load() failed: %v", err)
	}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			cfg := Get()
			cfg.Port = 4000
			Set(cfg)
		}
	})
}
