package metrics

import "time"

// Metrics is the worker's metric set.
type Metrics struct {
	registry *Registry
	started  time.Time

	EventsDecoded  *Counter
	EventsDropped  *Counter
	Reads          *Counter
	ActionsMatched *Counter
	ActionsFailed  *Counter
	Emissions      *Counter
	Reconnects     *Counter

	Devices *Gauge
	Actions *Gauge

	ActionDuration *Histogram
}

// ReaderCounts mirrors the device reader's cumulative counters.
type ReaderCounts struct {
	Reads   uint64
	Decoded uint64
	Dropped uint64
}

// New registers the worker metrics in registry, or in Default when nil.
func New(registry *Registry) *Metrics {
	if registry == nil {
		registry = Default()
	}
	return &Metrics{
		registry: registry,
		started:  time.Now(),

		EventsDecoded:  registry.Counter("events_decoded_total", "Key events decoded from devices", nil),
		EventsDropped:  registry.Counter("events_dropped_total", "Raw events rejected while decoding", nil),
		Reads:          registry.Counter("reads_total", "Completed device reads", nil),
		ActionsMatched: registry.Counter("actions_matched_total", "Key combinations that matched an action", nil),
		ActionsFailed:  registry.Counter("actions_failed_total", "Actions whose handler returned an error", nil),
		Emissions:      registry.Counter("emissions_total", "Event batches written to the virtual keyboard", nil),
		Reconnects:     registry.Counter("reconnects_total", "Listener re-creations after device errors", nil),

		Devices: registry.Gauge("devices", "Keyboards currently read", nil),
		Actions: registry.Gauge("actions", "Registered action bindings", nil),

		ActionDuration: registry.Histogram("action_duration_seconds", "Time spent running an action", nil, nil),
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *Registry { return m.registry }

// Uptime returns the time since New.
func (m *Metrics) Uptime() time.Duration { return time.Since(m.started) }

// ObserveReader adds the growth between two reader snapshots. A reader
// that was re-created starts from zero, so cur below prev counts in full.
func (m *Metrics) ObserveReader(prev, cur ReaderCounts) {
	m.Reads.Add(delta(prev.Reads, cur.Reads))
	m.EventsDecoded.Add(delta(prev.Decoded, cur.Decoded))
	m.EventsDropped.Add(delta(prev.Dropped, cur.Dropped))
}

// ObserveAction records one dispatched action.
func (m *Metrics) ObserveAction(d time.Duration, err error) {
	m.ActionsMatched.Inc()
	if err != nil {
		m.ActionsFailed.Inc()
	}
	m.ActionDuration.ObserveDuration(d)
}

func delta(prev, cur uint64) uint64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}
