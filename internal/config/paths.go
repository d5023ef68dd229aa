package config

import (
	"os"
	"path/filepath"
)

// DataPath returns the root directory for ozchestrator's own data.
// It uses $OZCHESTRATOR_PATH if set, otherwise defaults to ~/.ozchestrator.
func DataPath() string {
	if v := os.Getenv("OZCHESTRATOR_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ozchestrator")
	}
	return filepath.Join(home, ".ozchestrator")
}

// ConfigPath returns the path to the ozchestrator config file.
func ConfigPath() string {
	return filepath.Join(DataPath(), "config.yaml")
}

// DotenvPath returns the path to the ozchestrator .env file.
func DotenvPath() string {
	return filepath.Join(DataPath(), ".env")
}

// StatusPath returns the path to the self-update status checklist file
// (component 4.L).
func StatusPath() string {
	return filepath.Join(DataPath(), "SELF_UPDATE_STATUS.md")
}
