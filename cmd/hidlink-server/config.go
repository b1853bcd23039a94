package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file format.
//
// Example:
//
//	control_address: ":17017"
//	interrupt_address: ":17019"
//	adapter_address: "AA:BB:CC:DD:EE:FF"
//	device_file: "/var/lib/hidlink/devices.json"
//	policy_address: "policy.local:9217"
//	auth_mode: policy
//	auth_timeout: 30s
//	log_level: info
//	log_file: "/var/log/hidlink/protocol.cborlog"
//	known_devices:
//	  - address: "11:22:33:44:55:66"
//	    name: "Deskboard"
type FileConfig struct {
	ControlAddress   string        `yaml:"control_address"`
	InterruptAddress string        `yaml:"interrupt_address"`
	AdapterAddress   string        `yaml:"adapter_address"`
	DeviceFile       string        `yaml:"device_file"`
	PolicyAddress    string        `yaml:"policy_address"`
	AuthMode         string        `yaml:"auth_mode"`
	AuthTimeout      time.Duration `yaml:"auth_timeout"`
	LogLevel         string        `yaml:"log_level"`
	LogFile          string        `yaml:"log_file"`
	KnownDevices     []KnownDevice `yaml:"known_devices"`
}

// KnownDevice is one pre-provisioned peripheral from the config file.
type KnownDevice struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// LoadFileConfig reads and parses a YAML configuration file.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// merge applies file values to config fields the command line left at
// their defaults. Flags explicitly set on the command line win.
func (f *FileConfig) merge(cfg *Config, setFlags map[string]bool) {
	if !setFlags["control"] && f.ControlAddress != "" {
		cfg.ControlAddress = f.ControlAddress
	}
	if !setFlags["interrupt"] && f.InterruptAddress != "" {
		cfg.InterruptAddress = f.InterruptAddress
	}
	if !setFlags["adapter"] && f.AdapterAddress != "" {
		cfg.AdapterAddress = f.AdapterAddress
	}
	if !setFlags["devices"] && f.DeviceFile != "" {
		cfg.DeviceFile = f.DeviceFile
	}
	if !setFlags["policy"] && f.PolicyAddress != "" {
		cfg.PolicyAddress = f.PolicyAddress
	}
	if !setFlags["auth-mode"] && f.AuthMode != "" {
		cfg.AuthMode = f.AuthMode
	}
	if !setFlags["auth-timeout"] && f.AuthTimeout != 0 {
		cfg.AuthTimeout = f.AuthTimeout
	}
	if !setFlags["log-level"] && f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if !setFlags["log-file"] && f.LogFile != "" {
		cfg.LogFile = f.LogFile
	}
}
