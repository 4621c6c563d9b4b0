package keyboard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays batches of events, then fails with errEndOfScript.
type scriptedSource struct {
	batches [][]KeyEvent
	closed  bool
}

var errEndOfScript = errors.New("end of script")

func (s *scriptedSource) push(events ...KeyEvent) {
	s.batches = append(s.batches, events)
}

func (s *scriptedSource) Read() ([]KeyEvent, error) {
	if len(s.batches) == 0 {
		return nil, errEndOfScript
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func (s *scriptedSource) ReadContext(ctx context.Context) ([]KeyEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrInterrupted, err)
	}
	return s.Read()
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

func press(k Key) KeyEvent   { return KeyEvent{Key: k, Position: Press} }
func release(k Key) KeyEvent { return KeyEvent{Key: k, Position: Release} }

func TestListenerPasteCombination(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)
	l.RegisterAction("paste", LCtrl, V)

	src.push(press(LCtrl))
	src.push(press(V))

	name, ok, err := l.GetAction()
	require.NoError(t, err)
	assert.False(t, ok, "LCtrl alone must not fire")
	assert.Empty(t, name)

	name, ok, err = l.GetAction()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "paste", name)
}

func TestListenerScreenshotScenario(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)
	l.RegisterAction("screenshot", LAlt, Q)

	src.push(press(LAlt))
	src.push(press(Q))
	src.push(release(Q))

	var fired []string
	for i := 0; i < 3; i++ {
		name, ok, err := l.GetAction()
		require.NoError(t, err)
		if ok {
			fired = append(fired, name)
		}
	}
	assert.Equal(t, []string{"screenshot"}, fired)
	assert.Equal(t, StateOf(LAlt), l.State())
}

func TestListenerExactMatchOnly(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)
	l.RegisterAction("paste", LCtrl, V)

	src.push(press(LCtrl), press(LShift), press(V))
	_, ok, err := l.GetAction()
	require.NoError(t, err)
	assert.False(t, ok, "superset must not fire")

	src.push(release(LShift))
	name, ok, err := l.GetAction()
	require.NoError(t, err)
	assert.True(t, ok, "releasing down to the exact combination fires")
	assert.Equal(t, "paste", name)
}

func TestListenerLastRegistrationWins(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)
	l.RegisterAction("first", LAlt, W)
	l.RegisterAction("second", W, LAlt)

	src.push(press(LAlt), press(W))
	name, ok, err := l.GetAction()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", name)
	assert.Len(t, l.Actions(), 1)
}

func TestListenerRightModifierIsDistinct(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)
	l.RegisterAction("paste", LCtrl, V)

	src.push(press(RCtrl), press(V))
	_, ok, err := l.GetAction()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListenerUnregisterAndClear(t *testing.T) {
	l := NewListenerFromSource(&scriptedSource{})
	l.RegisterAction("notify", LAlt, Q)
	l.RegisterAction("notify", RAlt, Q)
	l.RegisterAction("paste", LAlt, W)

	bindings := l.Actions()
	require.Len(t, bindings, 3)
	assert.Equal(t, "notify", bindings[0].Name)
	assert.Equal(t, "paste", bindings[2].Name)

	l.UnregisterAction("notify")
	assert.Equal(t, []Binding{{Name: "paste", Combo: StateOf(LAlt, W)}}, l.Actions())

	l.ClearActions()
	assert.Empty(t, l.Actions())
}

func TestListenerPropagatesSourceError(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)

	_, _, err := l.GetAction()
	assert.ErrorIs(t, err, errEndOfScript)
}

func TestListenerGetActionContext(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)
	l.RegisterAction("gui", LWin, G)
	src.push(press(LWin), press(G))

	name, ok, err := l.GetActionContext(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gui", name)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = l.GetActionContext(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, StateOf(LWin, G), l.State(), "an interrupted read leaves the state untouched")
}

func TestListenerClose(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)
	require.NoError(t, l.Close())
	assert.True(t, src.closed)
	assert.Same(t, src, l.Source())
}

func TestListenerReplaceActions(t *testing.T) {
	src := &scriptedSource{}
	l := NewListenerFromSource(src)
	l.RegisterAction("paste", LCtrl, V)

	l.ReplaceActions([]Binding{
		{Name: "notify", Combo: StateOf(LAlt, Q)},
		{Name: "screenshot", Combo: StateOf(LAlt, Q)},
		{Name: "copy", Combo: StateOf(LCtrl, C)},
	})
	assert.Equal(t, []Binding{
		{Name: "copy", Combo: StateOf(LCtrl, C)},
		{Name: "screenshot", Combo: StateOf(LAlt, Q)},
	}, l.Actions())

	src.push(press(LCtrl), press(V))
	_, ok, err := l.GetAction()
	require.NoError(t, err)
	assert.False(t, ok, "replaced binding must not fire")
}

func TestListenerReplaceActionsIsAtomic(t *testing.T) {
	l := NewListenerFromSource(&scriptedSource{})
	sets := [2][]Binding{
		{{Name: "a", Combo: StateOf(LAlt, A)}, {Name: "b", Combo: StateOf(LAlt, B)}},
		{{Name: "c", Combo: StateOf(LAlt, C)}, {Name: "d", Combo: StateOf(LAlt, D)}},
	}
	l.ReplaceActions(sets[0])

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
				l.ReplaceActions(sets[i%2])
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		got := l.Actions()
		if !assert.Len(t, got, 2, "observed a partially replaced registry") {
			break
		}
		assert.Contains(t, [][]Binding{sets[0], sets[1]}, got)
	}
	close(done)
	wg.Wait()
}
