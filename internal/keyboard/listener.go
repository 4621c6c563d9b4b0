package keyboard

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// EventSource produces batches of decoded key events. Reader implements it.
type EventSource interface {
	Read() ([]KeyEvent, error)
	ReadContext(ctx context.Context) ([]KeyEvent, error)
	Close() error
}

// Listener binds action names to exact key combinations.
//
// The live state belongs to the goroutine calling GetAction. The action
// registry may be changed concurrently, for example on configuration reload.
type Listener struct {
	src   EventSource
	state State

	mu      sync.RWMutex
	actions map[State]string
}

// NewListener opens every keyboard and returns a listener over them.
func NewListener(opts ...Option) (*Listener, error) {
	r, err := NewReader(opts...)
	if err != nil {
		return nil, err
	}
	return NewListenerFromSource(r), nil
}

// NewListenerFromSource returns a listener reading from src.
func NewListenerFromSource(src EventSource) *Listener {
	return &Listener{
		src:     src,
		actions: make(map[State]string),
	}
}

// Source returns the event source of the listener.
func (l *Listener) Source() EventSource { return l.src }

// RegisterAction binds name to the combination of keys. A later
// registration of the same combination replaces the earlier name.
func (l *Listener) RegisterAction(name string, keys ...Key) {
	combo := StateOf(keys...)
	l.mu.Lock()
	l.actions[combo] = name
	l.mu.Unlock()
}

// UnregisterAction removes every combination bound to name.
func (l *Listener) UnregisterAction(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	maps.DeleteFunc(l.actions, func(_ State, n string) bool { return n == name })
}

// ClearActions removes every binding.
func (l *Listener) ClearActions() {
	l.mu.Lock()
	clear(l.actions)
	l.mu.Unlock()
}

// ReplaceActions swaps the whole registry for bindings in one step, so a
// concurrent lookup sees either the old set or the new one. A later binding
// of the same combination wins.
func (l *Listener) ReplaceActions(bindings []Binding) {
	actions := make(map[State]string, len(bindings))
	for _, b := range bindings {
		actions[b.Combo] = b.Name
	}
	l.mu.Lock()
	l.actions = actions
	l.mu.Unlock()
}

// Binding is a registered combination.
type Binding struct {
	Name  string
	Combo State
}

// Actions returns the registered bindings sorted by name.
func (l *Listener) Actions() []Binding {
	l.mu.RLock()
	bindings := make([]Binding, 0, len(l.actions))
	for combo, name := range l.actions {
		bindings = append(bindings, Binding{Name: name, Combo: combo})
	}
	l.mu.RUnlock()

	slices.SortFunc(bindings, func(a, b Binding) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		return slices.Compare(a.Combo[:], b.Combo[:])
	})
	return bindings
}

// State returns the currently held keys.
func (l *Listener) State() State { return l.state }

// GetAction waits for the next batch of key events, applies it and returns
// the action bound to exactly the resulting combination, if any. An error is
// fatal to the listener.
func (l *Listener) GetAction() (string, bool, error) {
	events, err := l.src.Read()
	if err != nil {
		return "", false, err
	}
	name, ok := l.apply(events)
	return name, ok, nil
}

// GetActionContext is GetAction that gives up when ctx is done.
func (l *Listener) GetActionContext(ctx context.Context) (string, bool, error) {
	events, err := l.src.ReadContext(ctx)
	if err != nil {
		return "", false, err
	}
	name, ok := l.apply(events)
	return name, ok, nil
}

func (l *Listener) apply(events []KeyEvent) (string, bool) {
	l.state.ApplyEvents(events)

	l.mu.RLock()
	defer l.mu.RUnlock()
	name, ok := l.actions[l.state]
	return name, ok
}

// Close releases the event source.
func (l *Listener) Close() error {
	return l.src.Close()
}
