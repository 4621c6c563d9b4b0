package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dhe/internal/actions"
	"dhe/internal/config"
	"dhe/internal/health"
	"dhe/internal/history"
	"dhe/internal/ipc"
	"dhe/internal/keyboard"
	"dhe/internal/metrics"
)

const (
	minBackoff    = time.Second
	maxBackoff    = 30 * time.Second
	actionTimeout = 30 * time.Second
)

// deviceSource is the part of keyboard.Reader the worker inspects beyond
// plain event reads.
type deviceSource interface {
	Interrupt() error
	Devices() []keyboard.DeviceInfo
	Stats() keyboard.ReaderStats
}

// keyEmitter writes gestures to the virtual keyboard.
type keyEmitter interface {
	Tap(keys ...keyboard.Key) error
	CtrlV() error
}

// historyStore is the part of history.Store the worker uses.
type historyStore interface {
	history.Recorder
	Recent(ctx context.Context, n int) ([]history.Entry, error)
}

var errNoVirtualKeyboard = fmt.Errorf("%w: no virtual keyboard", ipc.ErrUnavailable)

// serialEmitter serializes emissions from the listener loop and control
// requests onto one virtual keyboard.
type serialEmitter struct {
	mu      sync.Mutex
	em      keyEmitter
	metrics *metrics.Metrics
}

func newSerialEmitter(em keyEmitter, m *metrics.Metrics) *serialEmitter {
	return &serialEmitter{em: em, metrics: m}
}

func (s *serialEmitter) Tap(keys ...keyboard.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.em == nil {
		return errNoVirtualKeyboard
	}
	if err := s.em.Tap(keys...); err != nil {
		return err
	}
	s.metrics.Emissions.Add(2)
	return nil
}

func (s *serialEmitter) CtrlV() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.em == nil {
		return errNoVirtualKeyboard
	}
	if err := s.em.CtrlV(); err != nil {
		return err
	}
	s.metrics.Emissions.Add(2)
	return nil
}

// listenerFactory opens a listener over the keyboards carrying reference.
type listenerFactory func(reference keyboard.Key) (*keyboard.Listener, error)

// Worker runs the key-combination loop and answers control requests.
type Worker struct {
	log        *slog.Logger
	loader     *config.Loader
	dispatcher *actions.Dispatcher
	keys       *serialEmitter
	history    historyStore
	metrics    *metrics.Metrics
	health     *health.Checker
	open       listenerFactory
	version    string
	started    time.Time
	minBackoff time.Duration

	mu        sync.Mutex
	cfg       *config.Config
	bindings  []config.ActionBinding
	reference keyboard.Key
	listener  *keyboard.Listener
	reopen    bool
	counts    metrics.ReaderCounts
}

// WorkerDeps are the collaborators of a Worker.
type WorkerDeps struct {
	Logger     *slog.Logger
	Loader     *config.Loader
	Dispatcher *actions.Dispatcher
	Emitter    *serialEmitter
	History    historyStore
	Metrics    *metrics.Metrics
	Health     *health.Checker
	Open       listenerFactory
	Version    string
}

// NewWorker creates a worker for the configuration cfg.
func NewWorker(deps WorkerDeps, cfg *config.Config) (*Worker, error) {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Emitter == nil {
		deps.Emitter = newSerialEmitter(nil, deps.Metrics)
	}
	w := &Worker{
		log:        deps.Logger,
		loader:     deps.Loader,
		dispatcher: deps.Dispatcher,
		keys:       deps.Emitter,
		history:    deps.History,
		metrics:    deps.Metrics,
		health:     deps.Health,
		open:       deps.Open,
		version:    deps.Version,
		started:    time.Now(),
		minBackoff: minBackoff,
	}
	if err := w.apply(cfg); err != nil {
		return nil, err
	}
	return w, nil
}

// apply installs cfg: it rebinds the listener, updates the dispatcher and
// wakes the blocked read so the loop picks the change up.
func (w *Worker) apply(cfg *config.Config) error {
	bindings, err := cfg.ActionBindings()
	if err != nil {
		return err
	}
	reference, err := cfg.ReferenceKey()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = cfg
	w.bindings = bindings
	if w.dispatcher != nil {
		w.dispatcher.Update(actions.SettingsFrom(cfg))
	}
	w.metrics.Actions.Set(int64(len(bindings)))

	if w.listener == nil {
		w.reference = reference
		return nil
	}
	registerBindings(w.listener, bindings)
	if reference != w.reference {
		w.reference = reference
		w.reopen = true
	}
	if src, ok := w.listener.Source().(deviceSource); ok {
		if err := src.Interrupt(); err != nil && !errors.Is(err, keyboard.ErrClosed) {
			w.log.Warn("interrupt keyboard read", "error", err)
		}
	}
	return nil
}

// OnConfigChange is registered with the loader.
func (w *Worker) OnConfigChange(cfg *config.Config) {
	if err := w.apply(cfg); err != nil {
		w.log.Error("apply reloaded configuration", "error", err)
		return
	}
	w.log.Info("configuration reloaded", "actions", len(cfg.ByHandler(config.HandlerActionListener)))
}

func registerBindings(l *keyboard.Listener, bindings []config.ActionBinding) {
	combos := make([]keyboard.Binding, 0, len(bindings))
	for _, b := range bindings {
		combos = append(combos, keyboard.Binding{Name: b.Name, Combo: keyboard.StateOf(b.Keys...)})
	}
	l.ReplaceActions(combos)
}

// Run loops until ctx is done. A listener that fails with an I/O error is
// re-created after a back-off; failing to find any keyboard on the first
// attempt is fatal.
func (w *Worker) Run(ctx context.Context) error {
	backoff := w.minBackoff
	first := true
	for {
		l, err := w.openListener()
		if err != nil {
			if first && errors.Is(err, keyboard.ErrKeyboardNotFound) {
				return err
			}
			w.log.Error("open keyboards", "error", err, "retry_in", backoff)
			if err := sleep(ctx, backoff); err != nil {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		first = false
		backoff = w.minBackoff

		err = w.listen(ctx, l)
		w.closeListener(l)
		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil:
			continue
		}

		var ioErr *keyboard.IOError
		if !errors.As(err, &ioErr) {
			return err
		}
		w.metrics.Reconnects.Inc()
		w.log.Error("keyboard listener failed", "error", err, "retry_in", backoff)
		if err := sleep(ctx, backoff); err != nil {
			return nil
		}
	}
}

func (w *Worker) openListener() (*keyboard.Listener, error) {
	w.mu.Lock()
	reference := w.reference
	w.mu.Unlock()

	l, err := w.open(reference)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	registerBindings(l, w.bindings)
	w.listener = l
	w.reopen = false
	w.counts = metrics.ReaderCounts{}
	if src, ok := l.Source().(deviceSource); ok {
		w.metrics.Devices.Set(int64(len(src.Devices())))
	}
	return l, nil
}

func (w *Worker) closeListener(l *keyboard.Listener) {
	w.mu.Lock()
	if w.listener == l {
		w.listener = nil
	}
	w.mu.Unlock()
	w.metrics.Devices.Set(0)
	if err := l.Close(); err != nil {
		w.log.Warn("close keyboards", "error", err)
	}
}

// listen reads actions until ctx ends, the reference key changes (nil
// return) or the listener fails.
func (w *Worker) listen(ctx context.Context, l *keyboard.Listener) error {
	for {
		name, ok, err := l.GetActionContext(ctx)
		w.observeReader(l)
		if err != nil {
			if errors.Is(err, keyboard.ErrInterrupted) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.mu.Lock()
				reopen := w.reopen
				w.mu.Unlock()
				if reopen {
					return nil
				}
				continue
			}
			return err
		}
		if ok {
			w.runAction(ctx, name, l.State())
		}
	}
}

func (w *Worker) observeReader(l *keyboard.Listener) {
	src, ok := l.Source().(deviceSource)
	if !ok {
		return
	}
	st := src.Stats()
	cur := metrics.ReaderCounts{Reads: st.Reads, Decoded: st.Decoded, Dropped: st.Dropped}

	w.mu.Lock()
	prev := w.counts
	w.counts = cur
	w.mu.Unlock()
	w.metrics.ObserveReader(prev, cur)
}

// runAction dispatches name and records the outcome. Failures are logged
// and never stop the loop.
func (w *Worker) runAction(ctx context.Context, name string, combo keyboard.State) {
	log := w.log.With("action", name, "keys", combo.String())
	log.Info("action matched")

	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	start := time.Now()
	err := w.dispatcher.Dispatch(actx, name)
	elapsed := time.Since(start)
	w.metrics.ObserveAction(elapsed, err)

	entry := history.Entry{
		Time:     start,
		Action:   name,
		Keys:     combo.String(),
		Outcome:  history.OutcomeOK,
		Duration: elapsed,
	}
	if err != nil {
		entry.Outcome = history.OutcomeError
		entry.Error = err.Error()
		if errors.Is(err, actions.ErrUnknownAction) {
			log.Warn("unknown action", "error", err)
		} else {
			log.Error("action failed", "error", err, "duration", elapsed)
		}
	}

	if w.history != nil {
		if err := w.history.Record(context.WithoutCancel(ctx), entry); err != nil {
			log.Warn("record history", "error", err)
		}
	}
}

// Status implements ipc.Service.
func (w *Worker) Status(ctx context.Context) (*ipc.StatusResponse, error) {
	resp := &ipc.StatusResponse{
		Version:   w.version,
		StartedAt: w.started,
		Uptime:    time.Since(w.started),
		Actions:   w.Bindings(),
		Metrics:   w.metrics.Registry().Snapshot(),
	}
	if w.loader != nil {
		resp.ConfigPath = w.loader.Path()
	}
	if w.health != nil {
		report := w.health.Report(ctx)
		resp.Health = &report
	}

	w.mu.Lock()
	l := w.listener
	w.mu.Unlock()
	if l != nil {
		if src, ok := l.Source().(deviceSource); ok {
			for _, d := range src.Devices() {
				resp.Devices = append(resp.Devices, ipc.Device{
					Path:    d.Path,
					Name:    d.Name,
					Vendor:  d.ID.Vendor,
					Product: d.ID.Product,
				})
			}
		}
	}
	return resp, nil
}

// CheckKeyboards reports whether a listener is reading keyboards.
func (w *Worker) CheckKeyboards(context.Context) health.CheckResult {
	w.mu.Lock()
	l := w.listener
	w.mu.Unlock()
	if l == nil {
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "no keyboard listener"}
	}
	src, ok := l.Source().(deviceSource)
	if !ok {
		return health.CheckResult{Status: health.StatusHealthy, Message: "listening"}
	}
	return health.CheckResult{
		Status:  health.StatusHealthy,
		Message: fmt.Sprintf("reading %d keyboards", len(src.Devices())),
	}
}

// Bindings returns the configured actions and their key names.
func (w *Worker) Bindings() []ipc.Binding {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ipc.Binding, 0, len(w.bindings))
	for _, b := range w.bindings {
		names := make([]string, len(b.Keys))
		for i, k := range b.Keys {
			names[i] = k.String()
		}
		out = append(out, ipc.Binding{Name: b.Name, Keys: names})
	}
	return out
}

// Reload implements ipc.Service.
func (w *Worker) Reload(context.Context) (*ipc.ReloadResponse, error) {
	if w.loader == nil {
		return nil, fmt.Errorf("%w: no configuration file", ipc.ErrUnavailable)
	}
	// Reload runs the OnChange callbacks, which apply the new config.
	if _, err := w.loader.Reload(); err != nil {
		return nil, fmt.Errorf("reload %s: %w", w.loader.Path(), err)
	}
	return &ipc.ReloadResponse{Actions: w.Bindings()}, nil
}

// Paste implements ipc.Service.
func (w *Worker) Paste(context.Context) error {
	return w.keys.CtrlV()
}

// Tap implements ipc.Service.
func (w *Worker) Tap(_ context.Context, names []string) error {
	keys, err := keyboard.ParseKeys(names)
	if err != nil {
		return fmt.Errorf("%w: %v", ipc.ErrInvalid, err)
	}
	return w.keys.Tap(keys...)
}

// History implements ipc.Service.
func (w *Worker) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if w.history == nil {
		return nil, fmt.Errorf("%w: history is disabled", ipc.ErrUnavailable)
	}
	if limit <= 0 {
		limit = 20
	}
	return w.history.Recent(ctx, limit)
}

// Metrics implements ipc.Service.
func (w *Worker) Metrics(context.Context) (string, error) {
	var sb strings.Builder
	if err := w.metrics.Registry().WritePrometheus(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
