package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "DIODE_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "diode.yaml"
	// ConfigDirName is the config directory name under /etc
	ConfigDirName = "diode"
)

// FindConfigPath searches for a config file in priority order:
// 1. $DIODE_CONFIG (explicit path)
// 2. ./diode.yaml (working directory)
// 3. /etc/diode/config.yaml
//
// Returns empty string if no config file found
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if fileExists(path) {
			return path
		}
	}

	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	systemPath := filepath.Join("/etc", ConfigDirName, "config.yaml")
	if fileExists(systemPath) {
		return systemPath
	}

	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
