package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, limit int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"), limit)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.Record(ctx, Entry{
		Time: base, Action: "translate-to-notify", Keys: "LCtrl+LAlt+T", Duration: 120 * time.Millisecond,
	}))
	require.NoError(t, s.Record(ctx, Entry{
		Time: base.Add(time.Second), Action: "translate-to-paste", Keys: "LCtrl+LAlt+Y",
		Outcome: OutcomeError, Error: "translation not found",
	}))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "translate-to-paste", entries[0].Action)
	assert.Equal(t, OutcomeError, entries[0].Outcome)
	assert.Equal(t, "translation not found", entries[0].Error)

	assert.Equal(t, "translate-to-notify", entries[1].Action)
	assert.Equal(t, OutcomeOK, entries[1].Outcome)
	assert.Empty(t, entries[1].Error)
	assert.Equal(t, 120*time.Millisecond, entries[1].Duration)
	assert.True(t, base.Equal(entries[1].Time))

	one, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)

	none, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordStampsTime(t *testing.T) {
	s := openTestStore(t, 0)
	before := time.Now()
	require.NoError(t, s.Record(context.Background(), Entry{Action: "open-gui", Keys: "LWin+G"}))

	entries, err := s.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Time.Before(before))
}

func TestLimitPrunesOldest(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Entry{
			Time: base.Add(time.Duration(i) * time.Second), Action: "open-gui", Keys: "G",
		}))
	}

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, base.Add(4*time.Second).Equal(entries[0].Time))
	assert.True(t, base.Add(2*time.Second).Equal(entries[2].Time))
}

func TestCounts(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	for _, e := range []Entry{
		{Action: "translate-to-paste", Keys: "Y"},
		{Action: "translate-to-paste", Keys: "Y", Outcome: OutcomeError, Error: "boom"},
		{Action: "open-gui", Keys: "G"},
	} {
		require.NoError(t, s.Record(ctx, e))
	}

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ActionCount{
		{Action: "open-gui", Total: 1, Failures: 0},
		{Action: "translate-to-paste", Total: 2, Failures: 1},
	}, counts)
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Entry{Action: "open-gui", Keys: "G"}))
	require.NoError(t, s.Close())

	s, err = Open(path, 0)
	require.NoError(t, err)
	defer s.Close()

	v, err := currentVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), v)

	entries, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}
