package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dhe/internal/keyboard"
	"dhe/internal/logging"
)

const sampleTOML = `
[[commands]]
handler = "bash-starter"
name = "dhe_node"

[[commands]]
handler = "action-listener"
name = "translate-to-notify"
args = ["LCtrl", "LAlt", "T"]

[[commands]]
handler = "action-listener"
name = "translate-to-paste"
args = ["LCtrl", "LAlt", "Y"]

[paste]
restore_delay = "250ms"

[keyboard]
reference_key = "Space"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRestoreDelay, cfg.Paste.RestoreDelay.Std())
	assert.Equal(t, DefaultStarterDelay, cfg.Starter.Delay.Std())
	assert.Equal(t, DefaultGUICommand, cfg.GUI.Command)

	ref, err := cfg.ReferenceKey()
	require.NoError(t, err)
	assert.Equal(t, keyboard.Enter, ref)
}

func TestDefaultCommandsPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, CommandsFileName), DefaultCommandsPath())

	// TOML is reported when nothing exists.
	assert.Equal(t, filepath.Join(home, "dhe_commands.toml"), FindCommandsFile())

	yamlPath := filepath.Join(home, "dhe_commands.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("commands: []\n"), 0o600))
	assert.Equal(t, yamlPath, FindCommandsFile())
}

func TestRuntimeDirUsesXDG(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/dhe/dhe.sock", DefaultSocketPath())
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "dhe_commands.toml", sampleTOML))
	require.NoError(t, err)

	require.Len(t, cfg.Commands, 3)
	assert.Equal(t, 250*time.Millisecond, cfg.Paste.RestoreDelay.Std())
	// Untouched tables keep their defaults.
	assert.Equal(t, DefaultStarterDelay, cfg.Starter.Delay.Std())

	starters := cfg.StarterCommands()
	require.Len(t, starters, 1)
	assert.Equal(t, "dhe_node", starters[0].Name)
	assert.Empty(t, starters[0].Args)

	bindings, err := cfg.ActionBindings()
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, ActionTranslateToNotify, bindings[0].Name)
	assert.Equal(t, []keyboard.Key{keyboard.LCtrl, keyboard.LAlt, keyboard.T}, bindings[0].Keys)
	assert.Equal(t, ActionTranslateToPaste, bindings[1].Name)

	ref, err := cfg.ReferenceKey()
	require.NoError(t, err)
	assert.Equal(t, keyboard.Space, ref)
}

func TestLoadYAMLAndJSON(t *testing.T) {
	yamlDoc := `
commands:
  - handler: action-listener
    name: open-gui
    args: [LWin, G]
starter:
  delay: 1s
`
	jsonDoc := `{
  "commands": [
    {"handler": "action-listener", "name": "open-gui", "args": ["LWin", "G"]}
  ],
  "starter": {"delay": "1s"}
}`
	for name, path := range map[string]string{
		"yaml": writeFile(t, "dhe_commands.yaml", yamlDoc),
		"yml":  writeFile(t, "dhe_commands.yml", yamlDoc),
		"json": writeFile(t, "dhe_commands.json", jsonDoc),
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(path)
			require.NoError(t, err)
			bindings, err := cfg.ActionBindings()
			require.NoError(t, err)
			require.Len(t, bindings, 1)
			assert.Equal(t, ActionOpenGUI, bindings[0].Name)
			assert.Equal(t, []keyboard.Key{keyboard.LWin, keyboard.G}, bindings[0].Keys)
			assert.Equal(t, time.Second, cfg.Starter.Delay.Std())
		})
	}
}

func TestParseAutoDetect(t *testing.T) {
	cfg, err := Parse([]byte(`{"commands": [{"handler": "bash-starter", "name": "xterm"}]}`), ".conf")
	require.NoError(t, err)
	require.Len(t, cfg.Commands, 1)
	assert.Equal(t, HandlerBashStarter, cfg.Commands[0].Handler)

	_, err = Parse([]byte("commands = ["), "")
	require.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrCommandsFileNotFound)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown table", "[mystery]\nkey = 1\n"},
		{"unknown handler", "[[commands]]\nhandler = \"cron\"\nname = \"x\"\n"},
		{"missing name", "[[commands]]\nhandler = \"bash-starter\"\n"},
		{"args not strings", "[[commands]]\nhandler = \"bash-starter\"\nname = \"x\"\nargs = [1, 2]\n"},
		{"bad duration", "[paste]\nrestore_delay = \"soon\"\n"},
		{"bad output", "[logging]\noutput = \"syslog\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), ".toml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "schema")
		})
	}
}

func TestSemanticValidation(t *testing.T) {
	tests := []struct {
		name  string
		cmd   Command
		field string
	}{
		{"unknown action", Command{HandlerActionListener, "make-coffee", []string{"LCtrl", "K"}}, "commands[0].name"},
		{"empty keys", Command{HandlerActionListener, ActionOpenGUI, nil}, "commands[0].args"},
		{"unknown key", Command{HandlerActionListener, ActionOpenGUI, []string{"LCtrl", "Hyper"}}, "commands[0].args"},
		{"blank name", Command{HandlerBashStarter, "  ", nil}, "commands[0].name"},
		{"unknown handler", Command{"cron", "x", nil}, "commands[0].handler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Commands = []Command{tt.cmd}
			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateTunables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paste.RestoreDelay = -1
	cfg.Translate.Endpoint = "ftp://example.com"
	cfg.Translate.PasteAlternative = cfg.Translate.PasteTarget
	cfg.Logging.Level = "loud"
	cfg.Keyboard.ReferenceKey = "Hyper"

	err := cfg.Validate()
	require.Error(t, err)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"logging.level",
		"paste.restore_delay",
		"translate.endpoint",
		"translate.paste_alternative",
		"keyboard.reference_key",
	}, fields)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DHE_LOG_LEVEL", "debug")
	t.Setenv("DHE_SOCKET", "/tmp/custom.sock")

	cfg, err := Load(writeFile(t, "dhe_commands.toml", sampleTOML))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/custom.sock", cfg.Daemon.Socket)
}

func TestLoggingOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "file"
	cfg.Logging.File = "/var/log/dhe.log"

	lc, err := cfg.LoggingOptions()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
	assert.Equal(t, "file", lc.Output)
	assert.Equal(t, "/var/log/dhe.log", lc.FilePath)
	assert.EqualValues(t, 10, lc.MaxSize)
}

func TestCloneIsDeep(t *testing.T) {
	cfg, err := Load(writeFile(t, "dhe_commands.toml", sampleTOML))
	require.NoError(t, err)

	clone := cfg.Clone()
	clone.Commands[1].Args[0] = "RCtrl"
	assert.Equal(t, "LCtrl", cfg.Commands[1].Args[0])
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(writeFile(t, "dhe_commands.toml", sampleTOML))
	require.NoError(t, err)

	dir := t.TempDir()
	for _, ext := range []string{".toml", ".json", ".yaml"} {
		path := filepath.Join(dir, "out"+ext)
		require.NoError(t, Save(cfg, path))

		loaded, err := Load(path)
		require.NoError(t, err, ext)
		assert.Equal(t, cfg.Paste, loaded.Paste, ext)
		assert.Len(t, loaded.Commands, 3, ext)
	}
}

func TestLoaderReload(t *testing.T) {
	path := writeFile(t, "dhe_commands.toml", sampleTOML)
	l := NewLoader(path)
	defer l.Close()

	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) { changed <- c })

	require.NoError(t, os.WriteFile(path, []byte(sampleTOML+"\n[starter]\ndelay = \"2s\"\n"), 0o600))
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Starter.Delay.Std())
	assert.Same(t, cfg, <-changed)
	assert.Same(t, cfg, l.Config())

	// An invalid file leaves the active config in place.
	require.NoError(t, os.WriteFile(path, []byte("[[commands]]\nhandler = \"action-listener\"\nname = \"nope\"\nargs = [\"A\"]\n"), 0o600))
	_, err = l.Reload()
	require.Error(t, err)
	assert.Same(t, cfg, l.Config())
}

func TestLoaderWatch(t *testing.T) {
	path := writeFile(t, "dhe_commands.toml", sampleTOML)
	l := NewLoader(path)
	defer l.Close()

	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte(sampleTOML+"\n[paste]\n"), 0o600))
	// Duplicate table: the reload fails and is reported.
	select {
	case err := <-l.Errors():
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload error")
	}

	updated := `
[[commands]]
handler = "action-listener"
name = "open-gui"
args = ["LWin", "G"]
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	select {
	case cfg := <-changed:
		bindings, err := cfg.ActionBindings()
		require.NoError(t, err)
		require.Len(t, bindings, 1)
		assert.Equal(t, ActionOpenGUI, bindings[0].Name)
	case <-time.After(3 * time.Second):
		t.Fatal("expected config change")
	}
}
