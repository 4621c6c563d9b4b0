// Package clipboard reads and writes X11/Wayland selections through the
// usual command line tools (xclip, xsel, wl-clipboard).
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"

	"dhe/internal/logging"
)

// Selection names an X11/Wayland selection buffer.
type Selection int

const (
	// SelectionClipboard is the explicit copy/paste buffer.
	SelectionClipboard Selection = iota
	// SelectionPrimary holds the most recent mouse selection.
	SelectionPrimary
)

func (s Selection) String() string {
	if s == SelectionPrimary {
		return "primary"
	}
	return "clipboard"
}

// MIME types handled by Save and Restore.
const (
	MIMEText = "text/plain"
	MIMEPNG  = "image/png"
)

var (
	// ErrNoBackend is returned when no supported tool is installed.
	ErrNoBackend = errors.New("clipboard: no backend available (install xclip, xsel or wl-clipboard)")
	// ErrUnsupported is returned when the backend cannot handle a request.
	ErrUnsupported = errors.New("clipboard: operation not supported by backend")
)

// Runner executes clipboard tools.
type Runner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Input runs the command with stdin set to data. The command's stdout
	// is discarded since the tools keep running to serve the selection.
	Input(ctx context.Context, data []byte, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (execRunner) Input(ctx context.Context, data []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(data)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Clipboard accesses selections through one backend.
type Clipboard struct {
	backend backend
	run     Runner
	log     *slog.Logger
}

type options struct {
	backend string
	run     Runner
	log     *slog.Logger
	env     func(string) string
	look    func(string) (string, error)
}

// Option configures New.
type Option func(*options)

// WithBackend forces a backend by name: "xclip", "xsel" or "wl-clipboard".
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(o *options) {
		if r != nil {
			o.run = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// New detects a backend: wl-clipboard under Wayland, then xclip, then xsel.
func New(opts ...Option) (*Clipboard, error) {
	o := options{
		run:  execRunner{},
		env:  os.Getenv,
		look: exec.LookPath,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Default().WithComponent("clipboard").Logger
	}

	var b backend
	if o.backend != "" {
		var ok bool
		if b, ok = backendByName(o.backend); !ok {
			return nil, fmt.Errorf("clipboard: unknown backend %q", o.backend)
		}
	} else {
		var err error
		if b, err = detect(o.env, o.look); err != nil {
			return nil, err
		}
	}

	o.log.Debug("clipboard backend selected", "backend", b.name())
	return &Clipboard{backend: b, run: o.run, log: o.log}, nil
}

func detect(env func(string) string, look func(string) (string, error)) (backend, error) {
	candidates := []backend{xclip{}, xsel{}}
	if env("WAYLAND_DISPLAY") != "" {
		candidates = append([]backend{wlClipboard{}}, candidates...)
	}
	for _, b := range candidates {
		if _, err := look(b.binary()); err == nil {
			return b, nil
		}
	}
	return nil, ErrNoBackend
}

// Backend returns the name of the active backend.
func (c *Clipboard) Backend() string { return c.backend.name() }

// Text returns the text held by sel.
func (c *Clipboard) Text(ctx context.Context, sel Selection) (string, error) {
	out, err := c.Read(ctx, sel, MIMEText)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SetText replaces the contents of sel with text.
func (c *Clipboard) SetText(ctx context.Context, sel Selection, text string) error {
	return c.Write(ctx, sel, MIMEText, []byte(text))
}

// Read returns the content of sel in the given MIME type.
func (c *Clipboard) Read(ctx context.Context, sel Selection, mime string) ([]byte, error) {
	name, args, err := c.backend.read(sel, mime)
	if err != nil {
		return nil, err
	}
	out, err := c.run.Output(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("clipboard: read %s: %w", sel, err)
	}
	return out, nil
}

// Write replaces the content of sel with data of the given MIME type.
func (c *Clipboard) Write(ctx context.Context, sel Selection, mime string, data []byte) error {
	name, args, err := c.backend.write(sel, mime)
	if err != nil {
		return err
	}
	if err := c.run.Input(ctx, data, name, args...); err != nil {
		return fmt.Errorf("clipboard: write %s: %w", sel, err)
	}
	return nil
}

// Targets lists the MIME types sel currently offers.
func (c *Clipboard) Targets(ctx context.Context, sel Selection) ([]string, error) {
	name, args, err := c.backend.targets(sel)
	if err != nil {
		return nil, err
	}
	out, err := c.run.Output(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("clipboard: list targets: %w", err)
	}
	return strings.Fields(string(out)), nil
}

// Snapshot is a saved copy of the clipboard selection.
type Snapshot struct {
	Image   []byte
	Text    string
	HasText bool
}

// Empty reports whether nothing was captured.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Image) == 0 && !s.HasText)
}

// Save captures the clipboard selection. Both parts are best effort: an
// unreadable image or text is simply left out of the snapshot.
func (c *Clipboard) Save(ctx context.Context) *Snapshot {
	snap := &Snapshot{}

	if targets, err := c.Targets(ctx, SelectionClipboard); err == nil && slices.Contains(targets, MIMEPNG) {
		if img, err := c.Read(ctx, SelectionClipboard, MIMEPNG); err == nil {
			snap.Image = img
		} else {
			c.log.Debug("clipboard image not saved", "error", err)
		}
	}

	if text, err := c.Text(ctx, SelectionClipboard); err == nil {
		snap.Text = text
		snap.HasText = true
	} else {
		c.log.Debug("clipboard text not saved", "error", err)
	}
	return snap
}

// Restore writes a snapshot back to the clipboard selection, image first
// and then text, so the text is what remains when both were present.
func (c *Clipboard) Restore(ctx context.Context, snap *Snapshot) error {
	if snap.Empty() {
		return nil
	}
	if len(snap.Image) > 0 {
		if err := c.Write(ctx, SelectionClipboard, MIMEPNG, snap.Image); err != nil {
			return err
		}
	}
	if snap.HasText {
		if err := c.SetText(ctx, SelectionClipboard, snap.Text); err != nil {
			return err
		}
	}
	return nil
}
