// Package actions runs the worker's named actions and starter commands.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"dhe/internal/clipboard"
	"dhe/internal/config"
	"dhe/internal/logging"
	"dhe/internal/translate"
)

// ErrUnknownAction is returned by Dispatch for names it has no handler for.
var ErrUnknownAction = errors.New("actions: unregistered keyboard action")

// ErrEmptySelection is returned when the primary selection holds no text.
var ErrEmptySelection = errors.New("actions: primary selection is empty")

// Clipboard is the selection access the actions need.
type Clipboard interface {
	Text(ctx context.Context, sel clipboard.Selection) (string, error)
	SetText(ctx context.Context, sel clipboard.Selection, text string) error
	Save(ctx context.Context) *clipboard.Snapshot
	Restore(ctx context.Context, snap *clipboard.Snapshot) error
}

// Paster sends the paste chord.
type Paster interface {
	CtrlV() error
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(ctx context.Context, summary, body string) error
}

// Detector guesses the language of a text.
type Detector interface {
	Detect(text string) (translate.Language, error)
}

// Settings are the config-derived parameters of the actions.
type Settings struct {
	NotifyTarget      translate.Language
	NotifyAlternative translate.Language
	PasteTarget       translate.Language
	PasteAlternative  translate.Language
	RestoreDelay      time.Duration
	GUICommand        string
	GUIArgs           []string
}

// SettingsFrom extracts Settings from a loaded configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		NotifyTarget:      translate.Language(cfg.Translate.NotifyTarget),
		NotifyAlternative: translate.Language(cfg.Translate.NotifyAlternative),
		PasteTarget:       translate.Language(cfg.Translate.PasteTarget),
		PasteAlternative:  translate.Language(cfg.Translate.PasteAlternative),
		RestoreDelay:      cfg.Paste.RestoreDelay.Std(),
		GUICommand:        cfg.GUI.Command,
		GUIArgs:           slices.Clone(cfg.GUI.Args),
	}
}

// Deps are the collaborators of a Dispatcher. Any may be nil when the
// actions needing it are never dispatched.
type Deps struct {
	Clipboard  Clipboard
	Paster     Paster
	Notifier   Notifier
	Translator translate.Translator
	Detector   Detector
	Spawner    Spawner
	Logger     *slog.Logger
}

// Dispatcher maps action names to handlers.
type Dispatcher struct {
	deps Deps
	log  *slog.Logger

	mu       sync.RWMutex
	settings Settings

	// sleep waits between paste and restore; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps, s Settings) *Dispatcher {
	log := deps.Logger
	if log == nil {
		log = logging.Default().WithComponent("actions").Logger
	}
	if deps.Detector == nil {
		deps.Detector = translate.NewDetector()
	}
	if deps.Spawner == nil {
		deps.Spawner = NewExecSpawner(log)
	}
	return &Dispatcher{deps: deps, log: log, settings: s, sleep: sleepContext}
}

// Update replaces the settings, e.g. after a config reload.
func (d *Dispatcher) Update(s Settings) {
	d.mu.Lock()
	d.settings = s
	d.mu.Unlock()
}

// Settings returns the active settings.
func (d *Dispatcher) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// Dispatch runs the action called name.
func (d *Dispatcher) Dispatch(ctx context.Context, name string) error {
	switch name {
	case config.ActionTranslateToNotify:
		return d.TranslateToNotify(ctx)
	case config.ActionTranslateToPaste:
		return d.TranslateToPaste(ctx)
	case config.ActionOpenGUI:
		return d.OpenGUI()
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, name)
	}
}

// TranslateToNotify translates the primary selection and shows the result
// as a notification.
func (d *Dispatcher) TranslateToNotify(ctx context.Context) error {
	s := d.Settings()
	text, err := d.translateSelection(ctx, s.NotifyTarget, s.NotifyAlternative)
	if err != nil {
		return err
	}
	if d.deps.Notifier == nil {
		return errors.New("actions: no notifier configured")
	}
	if err := d.deps.Notifier.Notify(ctx, "", text); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}
	return nil
}

// TranslateToPaste translates the primary selection, pastes it through the
// clipboard and then puts the previous clipboard contents back after the
// restore delay.
func (d *Dispatcher) TranslateToPaste(ctx context.Context) error {
	s := d.Settings()
	text, err := d.translateSelection(ctx, s.PasteTarget, s.PasteAlternative)
	if err != nil {
		return err
	}
	if d.deps.Paster == nil {
		return errors.New("actions: no virtual keyboard configured")
	}

	clip := d.deps.Clipboard
	saved := clip.Save(ctx)
	if err := clip.SetText(ctx, clipboard.SelectionClipboard, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}

	pasteErr := d.deps.Paster.CtrlV()
	if pasteErr == nil {
		if err := d.sleep(ctx, s.RestoreDelay); err != nil {
			pasteErr = err
		}
	} else {
		pasteErr = fmt.Errorf("paste: %w", pasteErr)
	}

	// The caller's context may be done by now; restoring must still run.
	restoreErr := clip.Restore(context.WithoutCancel(ctx), saved)
	if restoreErr != nil {
		restoreErr = fmt.Errorf("restore clipboard: %w", restoreErr)
	}
	return errors.Join(pasteErr, restoreErr)
}

// OpenGUI starts the configured GUI binary without waiting for it.
func (d *Dispatcher) OpenGUI() error {
	s := d.Settings()
	if err := d.deps.Spawner.Start(s.GUICommand, s.GUIArgs...); err != nil {
		return fmt.Errorf("open gui: %w", err)
	}
	return nil
}

func (d *Dispatcher) translateSelection(ctx context.Context, target, alternative translate.Language) (string, error) {
	if d.deps.Clipboard == nil || d.deps.Translator == nil {
		return "", errors.New("actions: translation is not configured")
	}
	text, err := d.deps.Clipboard.Text(ctx, clipboard.SelectionPrimary)
	if err != nil {
		return "", fmt.Errorf("read selection: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptySelection
	}

	lang, err := d.deps.Detector.Detect(text)
	if err != nil {
		return "", err
	}
	from, to := translate.Direction(lang, target, alternative)

	out, err := d.deps.Translator.Translate(ctx, text, from, to)
	if err != nil {
		return "", err
	}
	d.log.Debug("selection translated", "from", from, "to", to, "text", text, "translation", out)
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
