package camera

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Manager holds the current camera configuration and handles updates.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// OnConfigChange is called after a successful update.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a camera manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and stores cfg.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}
	return nil
}

// UpdateConfig updates specific fields of the configuration.
// A "preset" key replaces the whole config before other keys apply.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		kind, device, url, producer := cfg.Kind, cfg.Device, cfg.SignallingURL, cfg.Producer
		cfg = *preset
		// Presets describe resolution only; keep the chosen device.
		cfg.Kind, cfg.Device, cfg.SignallingURL, cfg.Producer = kind, device, url, producer
	}

	for key, value := range params {
		switch key {
		case "source":
			if v, ok := value.(string); ok {
				cfg.Kind = v
			}
		case "device":
			if v, ok := value.(string); ok {
				cfg.Device = v
			}
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				cfg.Framerate = v
			}
		case "quality":
			if v, ok := toInt(value); ok {
				cfg.Quality = v
			}
		case "signalling_url":
			if v, ok := value.(string); ok {
				cfg.SignallingURL = v
			}
		case "producer":
			if v, ok := value.(string); ok {
				cfg.Producer = v
			}
		case "max_age":
			if v, ok := value.(string); ok {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("max_age: %w", err)
				}
				cfg.MaxAge = d
			}
		}
	}

	return m.SetConfig(cfg)
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
