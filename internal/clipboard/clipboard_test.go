package clipboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name  string
	args  []string
	stdin string
}

func (c call) String() string {
	return strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
}

// fakeRunner answers Output calls from a table keyed by command line and
// records every invocation.
type fakeRunner struct {
	outputs map[string]string
	failing map[string]bool
	calls   []call
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, failing: map[string]bool{}}
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	c := call{name: name, args: args}
	f.calls = append(f.calls, c)
	if f.failing[c.String()] {
		return nil, errors.New("exit status 1")
	}
	out, ok := f.outputs[c.String()]
	if !ok {
		return nil, errors.New("exit status 1")
	}
	return []byte(out), nil
}

func (f *fakeRunner) Input(_ context.Context, data []byte, name string, args ...string) error {
	c := call{name: name, args: args, stdin: string(data)}
	f.calls = append(f.calls, c)
	if f.failing[c.String()] {
		return errors.New("exit status 1")
	}
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestClipboard(t *testing.T, backend string) (*Clipboard, *fakeRunner) {
	t.Helper()
	run := newFakeRunner()
	c, err := New(WithBackend(backend), WithRunner(run), WithLogger(quiet()))
	require.NoError(t, err)
	return c, run
}

func TestPrimaryTextPerBackend(t *testing.T) {
	tests := []struct {
		backend string
		cmd     string
	}{
		{"xclip", "xclip -selection primary -o"},
		{"xsel", "xsel --primary --output"},
		{"wl-clipboard", "wl-paste --no-newline --primary"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			c, run := newTestClipboard(t, tt.backend)
			run.outputs[tt.cmd] = "selected words"

			text, err := c.Text(context.Background(), SelectionPrimary)
			require.NoError(t, err)
			assert.Equal(t, "selected words", text)
			require.Len(t, run.calls, 1)
			assert.Equal(t, tt.cmd, run.calls[0].String())
		})
	}
}

func TestSetTextPerBackend(t *testing.T) {
	tests := []struct {
		backend string
		cmd     string
	}{
		{"xclip", "xclip -selection clipboard -i"},
		{"xsel", "xsel --clipboard --input"},
		{"wl-clipboard", "wl-copy"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			c, run := newTestClipboard(t, tt.backend)
			require.NoError(t, c.SetText(context.Background(), SelectionClipboard, "translated"))
			require.Len(t, run.calls, 1)
			assert.Equal(t, tt.cmd, run.calls[0].String())
			assert.Equal(t, "translated", run.calls[0].stdin)
		})
	}
}

func TestReadFailureIsWrapped(t *testing.T) {
	c, _ := newTestClipboard(t, "xclip")
	_, err := c.Text(context.Background(), SelectionPrimary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read primary")
}

func TestXselRejectsImages(t *testing.T) {
	c, run := newTestClipboard(t, "xsel")
	_, err := c.Read(context.Background(), SelectionClipboard, MIMEPNG)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = c.Targets(context.Background(), SelectionClipboard)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, run.calls)
}

func TestSaveAndRestoreWithImage(t *testing.T) {
	c, run := newTestClipboard(t, "xclip")
	run.outputs["xclip -selection clipboard -t TARGETS -o"] = "TARGETS\nimage/png\nUTF8_STRING\n"
	run.outputs["xclip -selection clipboard -o -t image/png"] = "\x89PNG"
	run.outputs["xclip -selection clipboard -o"] = "old text"

	snap := c.Save(context.Background())
	assert.Equal(t, []byte("\x89PNG"), snap.Image)
	assert.True(t, snap.HasText)
	assert.Equal(t, "old text", snap.Text)

	run.calls = nil
	require.NoError(t, c.Restore(context.Background(), snap))
	require.Len(t, run.calls, 2)
	assert.Equal(t, "xclip -selection clipboard -i -t image/png", run.calls[0].String())
	assert.Equal(t, "xclip -selection clipboard -i", run.calls[1].String())
	assert.Equal(t, "old text", run.calls[1].stdin)
}

func TestSaveEmptyClipboard(t *testing.T) {
	c, run := newTestClipboard(t, "wl-clipboard")
	snap := c.Save(context.Background())
	assert.True(t, snap.Empty())

	run.calls = nil
	require.NoError(t, c.Restore(context.Background(), snap))
	assert.Empty(t, run.calls)
	require.NoError(t, c.Restore(context.Background(), nil))
}

func TestRestoreFailure(t *testing.T) {
	c, run := newTestClipboard(t, "xclip")
	run.failing["xclip -selection clipboard -i"] = true
	err := c.Restore(context.Background(), &Snapshot{Text: "x", HasText: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write clipboard")
}

func TestDetect(t *testing.T) {
	installed := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + n, nil
				}
			}
			return "", exec.ErrNotFound
		}
	}
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}

	b, err := detect(env(nil), installed("xsel", "xclip"))
	require.NoError(t, err)
	assert.Equal(t, "xclip", b.name())

	b, err = detect(env(map[string]string{"WAYLAND_DISPLAY": "wayland-0"}), installed("xclip", "wl-copy"))
	require.NoError(t, err)
	assert.Equal(t, "wl-clipboard", b.name())

	// Wayland without wl-clipboard falls back to XWayland tools.
	b, err = detect(env(map[string]string{"WAYLAND_DISPLAY": "wayland-0"}), installed("xsel"))
	require.NoError(t, err)
	assert.Equal(t, "xsel", b.name())

	_, err = detect(env(nil), installed())
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(WithBackend("pbcopy"), WithLogger(quiet()))
	assert.Error(t, err)
}
