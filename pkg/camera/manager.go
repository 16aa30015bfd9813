package camera

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
)

// Manager holds the current camera configuration and handles updates
// coming from the web API.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// apply serializes SetConfig and UpdateConfig so a read-modify-write
	// never loses a concurrent update.
	apply sync.Mutex

	// Callback when config changes (for applying to the capture session).
	// The new config is only committed if the callback succeeds.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a new camera manager with the given initial config.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg, applies it through OnConfigChange and commits it.
func (m *Manager) SetConfig(cfg Config) error {
	m.apply.Lock()
	defer m.apply.Unlock()
	return m.setConfigLocked(cfg)
}

// setConfigLocked does the work of SetConfig. The caller holds m.apply.
func (m *Manager) setConfigLocked(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	m.mu.RLock()
	callback := m.OnConfigChange
	m.mu.RUnlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values; "preset" replaces the base config
// before the other fields are applied.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	m.apply.Lock()
	defer m.apply.Unlock()

	cfg := m.GetConfig()

	if raw, ok := params["preset"]; ok {
		presetName, _ := raw.(string)
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, presetName)
		}
		cfg = *preset
	}

	for key, value := range params {
		if key == "preset" {
			continue
		}
		if err := setField(&cfg, key, value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	return m.setConfigLocked(cfg)
}

// GetConfigJSON returns the current config as a map for JSON serialization.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	cfg := m.GetConfig()

	data, _ := json.Marshal(cfg)
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)

	return result
}

// setField applies one API field to cfg.
func setField(cfg *Config, key string, value interface{}) error {
	switch key {
	case "position", "resolution", "pixel_format", "orientation":
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s must be a string", key)
		}
		switch key {
		case "position":
			cfg.Position = Position(v)
		case "resolution":
			cfg.Resolution = v
		case "pixel_format":
			cfg.PixelFormat = PixelFormat(v)
		case "orientation":
			cfg.Orientation = Orientation(v)
		}
	case "framerate", "quality":
		v, ok := toInt(value)
		if !ok {
			return fmt.Errorf("%s must be a whole number", key)
		}
		if key == "framerate" {
			cfg.Framerate = v
		} else {
			cfg.Quality = v
		}
	default:
		return fmt.Errorf("unknown field %q", key)
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
