// fsutil/locations.go
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigvaldr/tacklebox/internal/osutil"
)

// GetHomeDir returns the user's home directory
func GetHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return home, nil
}

// GetConfigDir returns the appropriate configuration directory for the application
func GetConfigDir(appName string) (string, error) {
	// In development mode, use a local config directory
	if osutil.IsDevEnvironment() {
		return "config", nil
	}

	home, err := GetHomeDir()
	if err != nil {
		return "", err
	}

	switch osutil.GetOSType() {
	case osutil.Windows:
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, appName), nil

	case osutil.MacOS:
		return filepath.Join(home, "Library", "Application Support", appName), nil

	default:
		// XDG Base Directory specification
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, appName), nil
	}
}

// GetSystemConfigDir returns the system-wide configuration directory
func GetSystemConfigDir(appName string) (string, error) {
	if osutil.IsDevEnvironment() {
		return "config", nil
	}

	switch osutil.GetOSType() {
	case osutil.Windows:
		programData := os.Getenv("ProgramData")
		if programData == "" {
			systemDrive := os.Getenv("SystemDrive")
			if systemDrive == "" {
				systemDrive = "C:"
			}
			programData = filepath.Join(systemDrive, "ProgramData")
		}
		return filepath.Join(programData, appName), nil

	case osutil.MacOS:
		return filepath.Join("/Library", "Application Support", appName), nil

	default:
		return filepath.Join("/etc", appName), nil
	}
}

// GetLogDir returns the per-user log directory for the application
func GetLogDir(appName string) (string, error) {
	home, err := GetHomeDir()
	if err != nil {
		return "", err
	}

	switch osutil.GetOSType() {
	case osutil.Windows:
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(localAppData, appName, "Logs"), nil

	case osutil.MacOS:
		return filepath.Join(home, "Library", "Logs", appName), nil

	default:
		if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
			return filepath.Join(stateHome, appName, "logs"), nil
		}
		return filepath.Join(home, ".local", "state", appName, "logs"), nil
	}
}
