// Package settings manages persistent host-level defaults for the vmtopo CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds per-host defaults so repeated invocations on the same
// testbed server do not need the full flag set every time.
type Settings struct {
	// HostsFile is the hosts facts file used when --hosts is not specified
	HostsFile string `json:"hosts_file,omitempty"`

	// FPMTU overrides the default front-panel MTU
	FPMTU int `json:"fp_mtu,omitempty"`

	// MaxFPNum overrides the default per-VM front-panel bridge count
	MaxFPNum int `json:"max_fp_num,omitempty"`

	// Workers is the default front-panel binding concurrency
	Workers int `json:"workers,omitempty"`

	// Batch makes flow programming default to batched mode
	Batch bool `json:"batch,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vmtopo_settings.json"
	}
	return filepath.Join(home, ".vmtopo", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetFPMTU returns the configured front-panel MTU (with fallback)
func (s *Settings) GetFPMTU() int {
	if s.FPMTU > 0 {
		return s.FPMTU
	}
	return 9216
}

// GetMaxFPNum returns the configured bridge count (with fallback)
func (s *Settings) GetMaxFPNum() int {
	if s.MaxFPNum > 0 {
		return s.MaxFPNum
	}
	return 4
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
