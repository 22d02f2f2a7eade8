// Package config handles loading and storing server configuration.
package config

import (
	"context"
	"errors"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all server configuration values.
type Config struct {
	TickHz             int     `mapstructure:"TickHz"`
	Port               int     `mapstructure:"Port"`
	DefaultScene       string  `mapstructure:"DefaultScene"`
	MasterVolumeLimit  float64 `mapstructure:"MasterVolumeLimit"`
	AudioBlockFrames   int     `mapstructure:"AudioBlockFrames"`
	HighLatencyAudio   bool    `mapstructure:"HighLatencyAudio"`
	EventQueueCapacity int     `mapstructure:"EventQueueCapacity"`
	SnapshotCacheHz    float64 `mapstructure:"SnapshotCacheHz"`
}

// C is the global configuration instance.
var C Config

// mu protects concurrent access to C during hot-reload.
var mu sync.RWMutex

// watcherMu protects the watcher state
var (
	watcherMu       sync.Mutex
	watcherActive   bool
	watcherCtx      context.Context
	watcherCancel   context.CancelFunc
	currentCallback ReloadCallback
)

// ReloadCallback is called when the configuration is hot-reloaded. A running
// tick task does not retroactively change its rate on a live TickHz edit —
// the callback exists so cmd/server can log the change; acting on it is an
// operator concern (restart the process).
type ReloadCallback func(old, new Config)

// Load reads configuration from file and environment, populating C.
func Load() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.ambientworld")

	viper.SetDefault("TickHz", 20)
	viper.SetDefault("Port", 3000)
	viper.SetDefault("DefaultScene", "default")
	viper.SetDefault("MasterVolumeLimit", 1.0)
	viper.SetDefault("AudioBlockFrames", 512)
	viper.SetDefault("HighLatencyAudio", false)
	viper.SetDefault("EventQueueCapacity", 256)
	viper.SetDefault("SnapshotCacheHz", 10.0)

	viper.SetEnvPrefix("")
	_ = viper.BindEnv("TickHz", "TICK_HZ")
	_ = viper.BindEnv("Port", "PORT")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	return viper.Unmarshal(&C)
}

// Save writes the current configuration to file.
func Save() error {
	mu.RLock()
	defer mu.RUnlock()

	viper.Set("TickHz", C.TickHz)
	viper.Set("Port", C.Port)
	viper.Set("DefaultScene", C.DefaultScene)
	viper.Set("MasterVolumeLimit", C.MasterVolumeLimit)
	viper.Set("AudioBlockFrames", C.AudioBlockFrames)
	viper.Set("HighLatencyAudio", C.HighLatencyAudio)
	viper.Set("EventQueueCapacity", C.EventQueueCapacity)
	viper.Set("SnapshotCacheHz", C.SnapshotCacheHz)

	return viper.WriteConfig()
}

// Watch starts watching the config file for changes and calls the callback on reload.
// Returns a stop function to cancel watching.
// Only one watcher can be active at a time. Calling Watch when a watcher is active
// will replace the callback but keep the same underlying file watcher (to avoid
// viper race conditions).
func Watch(callback ReloadCallback) (stop func(), err error) {
	watcherMu.Lock()
	defer watcherMu.Unlock()

	// If no watcher is active, start one
	if !watcherActive {
		ctx, cancel := context.WithCancel(context.Background())
		watcherCtx = ctx
		watcherCancel = cancel
		currentCallback = callback
		watcherActive = true

		// Start viper's file watcher (only once)
		viper.WatchConfig()
		viper.OnConfigChange(func(e fsnotify.Event) {
			watcherMu.Lock()
			cb := currentCallback
			ctx := watcherCtx
			watcherMu.Unlock()

			// Check if watcher has been stopped
			if ctx != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			mu.Lock()
			old := C
			var newCfg Config
			if err := viper.Unmarshal(&newCfg); err == nil {
				C = newCfg
				mu.Unlock()
				if cb != nil {
					cb(old, newCfg)
				}
			} else {
				mu.Unlock()
			}
		})
	} else {
		// Watcher already active, just replace the callback
		currentCallback = callback
	}

	return func() {
		watcherMu.Lock()
		defer watcherMu.Unlock()
		if watcherCancel != nil {
			watcherCancel()
			watcherCancel = nil
			watcherCtx = nil
		}
		watcherActive = false
		currentCallback = nil
	}, nil
}

// Get returns a copy of the current config safely.
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return C
}

// Set updates the config safely.
func Set(cfg Config) {
	mu.Lock()
	C = cfg
	mu.Unlock()
}
