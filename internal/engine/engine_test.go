package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

var t0 = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func requireSameSessions(t *testing.T, want, got []schema.Session) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].StartedAt.Equal(got[i].StartedAt), "session %d start: %v != %v", i, want[i].StartedAt, got[i].StartedAt)
		assert.Equal(t, want[i].StartedAtDisplay, got[i].StartedAtDisplay)
		assert.Equal(t, want[i].IsOpen(), got[i].IsOpen(), "session %d open", i)
		if !want[i].IsOpen() && !got[i].IsOpen() {
			assert.True(t, want[i].EndedAt.Equal(*got[i].EndedAt))
			assert.Equal(t, *want[i].EndedAtDisplay, *got[i].EndedAtDisplay)
		}
	}
}

func TestMemStore_TransitionRules(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore(nil, nil, nil)

	_, err := ms.CloseLastSession(ctx, "u1", t0, "close")
	require.ErrorIs(t, err, ErrNoOpenSession)
	require.ErrorIs(t, err, ErrInvalidTransition)

	s, err := ms.AppendOpenSession(ctx, "u1", t0, "open")
	require.NoError(t, err)
	assert.True(t, s.IsOpen())
	assert.Equal(t, "open", s.StartedAtDisplay)

	_, err = ms.AppendOpenSession(ctx, "u1", t0.Add(time.Minute), "again")
	require.ErrorIs(t, err, ErrSessionOpen)
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := ms.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	closed, err := ms.CloseLastSession(ctx, "u1", t0.Add(8*time.Hour), "close")
	require.NoError(t, err)
	require.False(t, closed.IsOpen())
	assert.True(t, closed.EndedAt.Equal(t0.Add(8*time.Hour)))
	assert.Equal(t, "close", *closed.EndedAtDisplay)

	_, err = ms.CloseLastSession(ctx, "u1", t0.Add(9*time.Hour), "close")
	require.ErrorIs(t, err, ErrNoOpenSession)

	_, err = ms.AppendOpenSession(ctx, "u1", t0.Add(24*time.Hour), "next day")
	require.NoError(t, err)

	got, _ = ms.Get(ctx, "u1")
	require.Len(t, got, 2)
	require.NoError(t, CheckSessions(got))
	assert.False(t, got[0].IsOpen())
	assert.True(t, got[1].IsOpen())
}

func TestMemStore_GetUnknownUser(t *testing.T) {
	ms := NewMemStore(nil, nil, nil)
	got, err := ms.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore(nil, nil, nil)
	_, err := ms.AppendOpenSession(ctx, "u1", t0, "open")
	require.NoError(t, err)

	got, _ := ms.Get(ctx, "u1")
	got[0].StartedAtDisplay = "tampered"

	again, _ := ms.Get(ctx, "u1")
	assert.Equal(t, "open", again[0].StartedAtDisplay)
}

func TestMemStore_AllUsersFirstSeenOrder(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore(nil, nil, nil)
	for _, id := range []string{"zed", "amy", "mid"} {
		_, err := ms.AppendOpenSession(ctx, id, t0, "open")
		require.NoError(t, err)
	}
	_, err := ms.CloseLastSession(ctx, "zed", t0.Add(time.Hour), "close")
	require.NoError(t, err)

	all, err := ms.AllUsers(ctx)
	require.NoError(t, err)
	var ids []string
	for _, u := range all {
		ids = append(ids, u.UserID)
	}
	assert.Equal(t, []string{"zed", "amy", "mid"}, ids)
}

func TestMemStore_ConcurrentClockInAppendsOnce(t *testing.T) {
	ctx := context.Background()
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)
	ms := NewMemStore(nil, nil, p)

	const workers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ms.AppendOpenSession(ctx, "u1", t0, "open")
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, ErrSessionOpen) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	got, _ := ms.Get(ctx, "u1")
	assert.Len(t, got, 1)
}

func TestMemStore_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p, err := NewPersistence(dir)
	require.NoError(t, err)
	ms := NewMemStore(nil, nil, p)

	_, err = ms.AppendOpenSession(ctx, "Ub", t0, "2024/1/5 9:00:00")
	require.NoError(t, err)
	_, err = ms.AppendOpenSession(ctx, "Ua", t0.Add(time.Minute), "2024/1/5 9:01:00")
	require.NoError(t, err)
	_, err = ms.CloseLastSession(ctx, "Ub", t0.Add(8*time.Hour+30*time.Minute), "2024/1/5 17:30:00")
	require.NoError(t, err)
	_, err = ms.AppendOpenSession(ctx, "Ub", t0.Add(24*time.Hour), "2024/1/6 9:00:00")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, SessionsFile))
	require.NoError(t, err)

	order, data, err := p.LoadSessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"Ub", "Ua"}, order)

	reloaded := NewMemStore(order, data, p)
	before, _ := ms.AllUsers(ctx)
	after, _ := reloaded.AllUsers(ctx)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].UserID, after[i].UserID)
		requireSameSessions(t, before[i].Sessions, after[i].Sessions)
	}
}

func TestMemStore_FlushFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("not a directory"), 0644))

	var observed []error
	ms := NewMemStore(nil, nil, &Persistence{DataDir: blocked})
	ms.OnFlush(func(_ time.Duration, err error) { observed = append(observed, err) })

	_, err := ms.AppendOpenSession(ctx, "u1", t0, "open")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidTransition))
	require.Len(t, observed, 1)
	assert.Error(t, observed[0])

	got, _ := ms.Get(ctx, "u1")
	assert.Empty(t, got)
	all, _ := ms.AllUsers(ctx)
	assert.Empty(t, all)
}

func TestPersistence_LoadMissingIsEmpty(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	order, data, err := p.LoadSessions()
	require.NoError(t, err)
	assert.Empty(t, order)
	assert.Empty(t, data)

	names, err := p.LoadNames()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPersistence_LoadCorrupt(t *testing.T) {
	cases := map[string]string{
		"truncated":   `{"U1":[{"clockIn":"a","clockInTime":"2024-01-05T00:00:00Z"`,
		"empty":       ``,
		"not object":  `[]`,
		"bad time":    `{"U1":[{"clockIn":"a","clockInTime":"yesterday","clockOut":null}]}`,
		"open inside": `{"U1":[{"clockIn":"a","clockInTime":"2024-01-05T00:00:00Z","clockOut":null},{"clockIn":"b","clockInTime":"2024-01-06T00:00:00Z","clockOut":null}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, SessionsFile), []byte(doc), 0644))
			p, err := NewPersistence(dir)
			require.NoError(t, err)

			_, _, err = p.LoadSessions()
			require.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

func TestPersistence_LoadsLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	doc := `{
  "Uzzzz0001": [
    {
      "clockIn": "2024/1/5 9:00:00",
      "clockInTime": "2024-01-05T00:00:00.000Z",
      "clockOut": "2024/1/5 18:30:00",
      "clockOutTime": "2024-01-05T09:30:00.000Z"
    },
    {
      "clockIn": "2024/1/6 9:00:00",
      "clockInTime": "2024-01-06T00:00:00.000Z",
      "clockOut": null
    }
  ],
  "Uaaaa0002": []
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, SessionsFile), []byte(doc), 0644))
	p, err := NewPersistence(dir)
	require.NoError(t, err)

	order, data, err := p.LoadSessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"Uzzzz0001", "Uaaaa0002"}, order)

	sessions := data["Uzzzz0001"]
	require.Len(t, sessions, 2)
	assert.False(t, sessions[0].IsOpen())
	assert.Equal(t, "2024/1/5 18:30:00", *sessions[0].EndedAtDisplay)
	assert.True(t, sessions[0].EndedAt.Equal(time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)))
	assert.True(t, sessions[1].IsOpen())
	assert.Empty(t, data["Uaaaa0002"])
}

func TestPersistence_Quarantine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SessionsFile), []byte("{oops"), 0644))
	p, err := NewPersistence(dir)
	require.NoError(t, err)

	moved, err := p.Quarantine(SessionsFile)
	require.NoError(t, err)
	assert.FileExists(t, moved)
	assert.NoFileExists(t, filepath.Join(dir, SessionsFile))

	_, data, err := p.LoadSessions()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestMemDirectory_RememberKeepsFirstName(t *testing.T) {
	ctx := context.Background()
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)
	d := NewMemDirectory(nil, p)

	_, ok, err := d.Name(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Remember(ctx, "u1", "Taro"))
	require.NoError(t, d.Remember(ctx, "u1", "Renamed"))

	name, ok, _ := d.Name(ctx, "u1")
	assert.True(t, ok)
	assert.Equal(t, "Taro", name)

	loaded, err := p.LoadNames()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Taro"}, loaded)
}

func TestCheckSessions(t *testing.T) {
	end := t0.Add(time.Hour)
	display := "x"
	closed := schema.Session{StartedAt: t0, EndedAt: &end, EndedAtDisplay: &display}
	open := schema.Session{StartedAt: t0}

	assert.NoError(t, CheckSessions(nil))
	assert.NoError(t, CheckSessions([]schema.Session{closed, closed, open}))
	assert.Error(t, CheckSessions([]schema.Session{open, closed}))
	assert.Error(t, CheckSessions([]schema.Session{open, open}))
}
