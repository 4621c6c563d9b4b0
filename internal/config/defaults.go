package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CommandsFileName is the default command file name in $HOME.
const CommandsFileName = "dhe_commands.toml"

const (
	DefaultRestoreDelay     = 100 * time.Millisecond
	DefaultStarterDelay     = 300 * time.Millisecond
	DefaultTranslateTimeout = 10 * time.Second
	DefaultEndpoint         = "https://translate.google.com/m"
	DefaultGUICommand       = "dhe_gui"
	DefaultHistoryLimit     = 1000
)

// DataDir returns $XDG_DATA_HOME/dhe, falling back to ~/.local/share/dhe.
func DataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "dhe")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "dhe")
}

// RuntimeDir returns $XDG_RUNTIME_DIR/dhe, falling back to a per-user
// directory under the system temp dir.
func RuntimeDir() string {
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "dhe")
	}
	return filepath.Join(os.TempDir(), "dhe-"+strconv.Itoa(os.Getuid()))
}

// DefaultSocketPath is the control socket location.
func DefaultSocketPath() string {
	return filepath.Join(RuntimeDir(), "dhe.sock")
}

// DefaultHistoryPath is the action history database location.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history.db")
}

// DefaultCommandsPath returns $HOME/dhe_commands.toml, or an empty string
// when the home directory cannot be resolved.
func DefaultCommandsPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, CommandsFileName)
}

// SupportedFormats returns the recognised command file extensions.
func SupportedFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindCommandsFile looks for dhe_commands.<ext> in $HOME for every
// supported format. The TOML path is returned when none exists so that
// the caller reports a useful name.
func FindCommandsFile() string {
	def := DefaultCommandsPath()
	if def == "" {
		return ""
	}
	base := def[:len(def)-len(filepath.Ext(def))]
	for _, ext := range SupportedFormats() {
		path := base + "." + ext
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return def
}
