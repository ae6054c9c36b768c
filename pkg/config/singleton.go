package config

import (
	"fmt"
	"slices"
	"sync"
)

// The process-wide configuration. The CLI loads it once at startup and the
// file watcher replaces it through ReloadConfig.
var (
	mu        sync.RWMutex
	current   *Config
	initOnce  sync.Once
	initErr   error
	listeners = map[int]func(*Config){}
	nextID    int
)

// Initialize loads path with environment overrides into the process-wide
// configuration. An empty path means defaults plus environment. Only the
// first call loads; later calls return the first call's error.
func Initialize(path string) error {
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		SetConfig(cfg)
	})
	return initErr
}

// GetConfig returns the current configuration, or nil before Initialize.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetConfig replaces the current configuration without notifying reload
// listeners.
func SetConfig(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

// OnReload registers fn to receive every configuration installed by
// ReloadConfig. The returned func unregisters it.
func OnReload(fn func(*Config)) (cancel func()) {
	mu.Lock()
	id := nextID
	nextID++
	listeners[id] = fn
	mu.Unlock()

	return func() {
		mu.Lock()
		delete(listeners, id)
		mu.Unlock()
	}
}

// ReloadConfig loads path and, if it validates, installs it and notifies
// listeners in registration order. On error the current configuration stays.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	mu.Lock()
	current = cfg
	ids := make([]int, 0, len(listeners))
	for id := range listeners {
		ids = append(ids, id)
	}
	notify := make([]func(*Config), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		notify = append(notify, listeners[id])
	}
	mu.Unlock()

	for _, fn := range notify {
		fn(cfg)
	}
	return nil
}

func resetForTest() {
	mu.Lock()
	current = nil
	listeners = map[int]func(*Config){}
	nextID = 0
	initOnce = sync.Once{}
	initErr = nil
	mu.Unlock()
}
