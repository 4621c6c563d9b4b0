// Package config loads and validates the dhe command file.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"dhe/internal/keyboard"
	"dhe/internal/logging"
)

// Handler selects how a command entry is used.
type Handler string

const (
	// HandlerBashStarter entries are spawned once at startup with -init.
	HandlerBashStarter Handler = "bash-starter"
	// HandlerActionListener entries bind a key combination to an action.
	HandlerActionListener Handler = "action-listener"
)

// Action names understood by the worker.
const (
	ActionTranslateToNotify = "translate-to-notify"
	ActionTranslateToPaste  = "translate-to-paste"
	ActionOpenGUI           = "open-gui"
)

// KnownActions lists every action an action-listener entry may name.
var KnownActions = []string{
	ActionTranslateToNotify,
	ActionTranslateToPaste,
	ActionOpenGUI,
}

// ErrCommandsFileNotFound is returned when no command file path was given
// and none can be derived from the home directory.
var ErrCommandsFileNotFound = errors.New("config: commands file not specified")

// Duration is a time.Duration that decodes from strings like "150ms".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Config holds the complete worker configuration.
type Config struct {
	Commands  []Command       `toml:"commands" json:"commands" yaml:"commands"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Paste     PasteConfig     `toml:"paste" json:"paste" yaml:"paste"`
	Starter   StarterConfig   `toml:"starter" json:"starter" yaml:"starter"`
	Translate TranslateConfig `toml:"translate" json:"translate" yaml:"translate"`
	GUI       GUIConfig       `toml:"gui" json:"gui" yaml:"gui"`
	Daemon    DaemonConfig    `toml:"daemon" json:"daemon" yaml:"daemon"`
	Keyboard  KeyboardConfig  `toml:"keyboard" json:"keyboard" yaml:"keyboard"`
}

// Command is one [[commands]] entry.
type Command struct {
	Handler Handler  `toml:"handler" json:"handler" yaml:"handler"`
	Name    string   `toml:"name" json:"name" yaml:"name"`
	Args    []string `toml:"args,omitempty" json:"args,omitempty" yaml:"args,omitempty"`
}

// LoggingConfig mirrors logging.Config in file form.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	File       string `toml:"file" json:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// PasteConfig tunes translate-to-paste.
type PasteConfig struct {
	// RestoreDelay is how long the translated text stays on the clipboard
	// after the paste chord before the previous contents are restored.
	RestoreDelay Duration `toml:"restore_delay" json:"restore_delay" yaml:"restore_delay"`
}

// StarterConfig tunes bash-starter execution.
type StarterConfig struct {
	Delay Duration `toml:"delay" json:"delay" yaml:"delay"`
}

// TranslateConfig configures the translation backend and language pairs.
type TranslateConfig struct {
	Endpoint          string   `toml:"endpoint" json:"endpoint" yaml:"endpoint"`
	NotifyTarget      string   `toml:"notify_target" json:"notify_target" yaml:"notify_target"`
	NotifyAlternative string   `toml:"notify_alternative" json:"notify_alternative" yaml:"notify_alternative"`
	PasteTarget       string   `toml:"paste_target" json:"paste_target" yaml:"paste_target"`
	PasteAlternative  string   `toml:"paste_alternative" json:"paste_alternative" yaml:"paste_alternative"`
	Timeout           Duration `toml:"timeout" json:"timeout" yaml:"timeout"`
}

// GUIConfig names the binary spawned by open-gui.
type GUIConfig struct {
	Command string   `toml:"command" json:"command" yaml:"command"`
	Args    []string `toml:"args,omitempty" json:"args,omitempty" yaml:"args,omitempty"`
}

// DaemonConfig holds control socket and history settings.
type DaemonConfig struct {
	Socket       string `toml:"socket" json:"socket" yaml:"socket"`
	History      string `toml:"history" json:"history" yaml:"history"`
	HistoryLimit int    `toml:"history_limit" json:"history_limit" yaml:"history_limit"`
}

// KeyboardConfig tunes device discovery and the virtual keyboard.
type KeyboardConfig struct {
	ReferenceKey string `toml:"reference_key" json:"reference_key" yaml:"reference_key"`
	VirtualName  string `toml:"virtual_name" json:"virtual_name" yaml:"virtual_name"`
}

// DefaultConfig returns a configuration with no commands and every
// tunable at its default.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paste:   PasteConfig{RestoreDelay: Duration(DefaultRestoreDelay)},
		Starter: StarterConfig{Delay: Duration(DefaultStarterDelay)},
		Translate: TranslateConfig{
			Endpoint:          DefaultEndpoint,
			NotifyTarget:      "ru",
			NotifyAlternative: "en",
			PasteTarget:       "en",
			PasteAlternative:  "ru",
			Timeout:           Duration(DefaultTranslateTimeout),
		},
		GUI: GUIConfig{Command: DefaultGUICommand},
		Daemon: DaemonConfig{
			Socket:       DefaultSocketPath(),
			History:      DefaultHistoryPath(),
			HistoryLimit: DefaultHistoryLimit,
		},
		Keyboard: KeyboardConfig{
			ReferenceKey: keyboard.Enter.String(),
			VirtualName:  keyboard.DefaultVirtualName,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies DHE_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DHE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DHE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("DHE_SOCKET"); v != "" {
		c.Daemon.Socket = v
	}
	if v := os.Getenv("DHE_HISTORY"); v != "" {
		c.Daemon.History = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Commands = make([]Command, len(c.Commands))
	for i, cmd := range c.Commands {
		cmd.Args = slices.Clone(cmd.Args)
		clone.Commands[i] = cmd
	}
	clone.GUI.Args = slices.Clone(c.GUI.Args)
	return &clone
}

// ByHandler returns the commands with the given handler in file order.
func (c *Config) ByHandler(h Handler) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Handler == h {
			out = append(out, cmd)
		}
	}
	return out
}

// StarterCommands returns the bash-starter entries.
func (c *Config) StarterCommands() []Command {
	return c.ByHandler(HandlerBashStarter)
}

// ActionBinding is a parsed action-listener entry.
type ActionBinding struct {
	Name string
	Keys []keyboard.Key
}

// ActionBindings parses every action-listener entry. The config is
// expected to have passed Validate, so errors here mean it did not.
func (c *Config) ActionBindings() ([]ActionBinding, error) {
	cmds := c.ByHandler(HandlerActionListener)
	out := make([]ActionBinding, 0, len(cmds))
	for _, cmd := range cmds {
		keys, err := keyboard.ParseKeys(cmd.Args)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", cmd.Name, err)
		}
		out = append(out, ActionBinding{Name: cmd.Name, Keys: keys})
	}
	return out, nil
}

// ReferenceKey parses Keyboard.ReferenceKey, defaulting to Enter.
func (c *Config) ReferenceKey() (keyboard.Key, error) {
	if strings.TrimSpace(c.Keyboard.ReferenceKey) == "" {
		return keyboard.Enter, nil
	}
	return keyboard.ParseKey(c.Keyboard.ReferenceKey)
}

// LoggingOptions converts the [logging] table into a logging.Config.
// The file path defaults to logging.DefaultLogPath.
func (c *Config) LoggingOptions() (*logging.Config, error) {
	lc := logging.DefaultConfig()
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = format
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	if c.Logging.File != "" {
		lc.FilePath = c.Logging.File
	}
	if c.Logging.MaxSizeMB > 0 {
		lc.MaxSize = int64(c.Logging.MaxSizeMB)
	}
	if c.Logging.MaxBackups > 0 {
		lc.MaxBackups = c.Logging.MaxBackups
	}
	return lc, nil
}
