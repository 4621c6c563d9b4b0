// Package notify shows desktop notifications over the
// org.freedesktop.Notifications D-Bus interface.
package notify

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyCall = busName + ".Notify"

	// DefaultAppName is the application name shown by the server.
	DefaultAppName = "Dhe"
	// DefaultSummary is the notification title.
	DefaultSummary = "Dhe"

	maxBodyRunes = 2000
)

// Notifier shows a notification.
type Notifier interface {
	Notify(ctx context.Context, summary, body string) error
}

// caller is the part of dbus.BusObject used here.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Config tunes notifications.
type Config struct {
	AppName string
	Icon    string
	// TimeoutMs is passed to the server; -1 lets it decide.
	TimeoutMs int32
	// Replace makes each notification replace the previous one instead
	// of stacking.
	Replace bool
}

// DBusNotifier sends notifications on a private session bus connection.
type DBusNotifier struct {
	conn *dbus.Conn
	obj  caller
	cfg  Config

	mu     sync.Mutex
	lastID uint32
}

// New connects to the session bus.
func New(cfg Config) (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("notify: connect to session bus: %w", err)
	}
	n := newNotifier(conn.Object(busName, objectPath), cfg)
	n.conn = conn
	return n, nil
}

func newNotifier(obj caller, cfg Config) *DBusNotifier {
	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = -1
	}
	return &DBusNotifier{obj: obj, cfg: cfg}
}

// Notify shows summary and body. An empty summary uses DefaultSummary.
func (n *DBusNotifier) Notify(ctx context.Context, summary, body string) error {
	if summary == "" {
		summary = DefaultSummary
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var replaces uint32
	if n.cfg.Replace {
		replaces = n.lastID
	}

	call := n.obj.CallWithContext(ctx, notifyCall, 0,
		n.cfg.AppName,
		replaces,
		n.cfg.Icon,
		summary,
		truncate(body, maxBodyRunes),
		[]string{},
		map[string]dbus.Variant{},
		n.cfg.TimeoutMs,
	)
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	n.lastID = id
	return nil
}

// Close releases the bus connection.
func (n *DBusNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
