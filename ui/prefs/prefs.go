// Package prefs provides JSON-based viewer preferences.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	appDir    = "mri-viewer"
	prefsFile = "preferences.json"
)

// Preference keys.
const (
	KeyLastDir     = "lastDirectory"
	KeyLastImage   = "lastImage"
	KeySplitOffset = "splitOffset"
	KeyWindowW     = "windowWidth"
	KeyWindowH     = "windowHeight"
)

// Prefs stores preferences as a key-value map.
type Prefs struct {
	mu     sync.RWMutex
	values map[string]interface{}
	path   string
	dirty  bool
}

// Load reads preferences from <user config dir>/mri-viewer/preferences.json.
// Returns a Prefs with defaults if the file doesn't exist.
func Load() *Prefs {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return LoadFrom(filepath.Join(configDir, appDir))
}

// LoadFrom reads preferences from dir. A missing or corrupt file yields
// empty preferences.
func LoadFrom(dir string) *Prefs {
	p := &Prefs{
		values: make(map[string]interface{}),
		path:   filepath.Join(dir, prefsFile),
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(data, &p.values)
	return p
}

// Path returns the preferences file path.
func (p *Prefs) Path() string {
	return p.path
}

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("creating prefs dir: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return err
	}
	p.dirty = false
	return nil
}

// SaveIfChanged writes preferences only if a value changed since the last
// save.
func (p *Prefs) SaveIfChanged() error {
	p.mu.RLock()
	dirty := p.dirty
	p.mu.RUnlock()
	if !dirty {
		return nil
	}
	return p.Save()
}

// FloatWithFallback returns a float64 preference, or fallback if not set.
func (p *Prefs) FloatWithFallback(key string, fallback float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) {
	p.set(key, val)
}

// String returns a string preference, or "" if not set.
func (p *Prefs) String(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetString stores a string preference.
func (p *Prefs) SetString(key string, val string) {
	p.set(key, val)
}

func (p *Prefs) set(key string, val interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.values[key]; ok && old == val {
		return
	}
	p.values[key] = val
	p.dirty = true
}
