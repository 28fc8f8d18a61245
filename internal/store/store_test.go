package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BugisoftRSG/subathon-timer/internal/timer"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSettingsUpsert(t *testing.T) {
	st := openTestStore(t)

	_, ok, err := st.Setting(timer.SettingBaseTime)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.UpsertSetting(timer.SettingBaseTime, 60))
	require.NoError(t, st.UpsertSetting(timer.SettingBaseTime, 45))

	v, ok, err := st.Setting(timer.SettingBaseTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 45, v)
}

func TestLoadStateDefaults(t *testing.T) {
	st := openTestStore(t)

	state, err := st.LoadState(60)
	require.NoError(t, err)

	assert.False(t, state.IsStarted)
	assert.True(t, state.StartedAt.IsZero())
	assert.True(t, state.EndingAt.IsZero())
	assert.Equal(t, 60.0, state.BaseTime)
}

func TestLoadStateReconstruction(t *testing.T) {
	st := openTestStore(t)

	t0 := time.UnixMilli(1_700_000_000_000)
	t1 := time.UnixMilli(1_700_000_500_000)

	require.NoError(t, st.UpsertSetting(timer.SettingStartedAt, t0.UnixMilli()))
	require.NoError(t, st.UpsertSetting(timer.SettingBaseTime, 30))
	require.NoError(t, st.InsertSubscription(t0.Add(time.Minute), t1, 30, "1000", "viewer1"))

	state, err := st.LoadState(60)
	require.NoError(t, err)

	assert.True(t, state.IsStarted)
	assert.Equal(t, t0, state.StartedAt)
	assert.Equal(t, 30.0, state.BaseTime)
	assert.Equal(t, t1, state.EndingAt)
}

func TestLoadStatePicksNewestAcrossTables(t *testing.T) {
	st := openTestStore(t)

	base := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, st.InsertSubscription(base, base.Add(time.Hour), 60, "1000", "viewer1"))
	require.NoError(t, st.InsertGraphSample(base.Add(time.Minute), base.Add(2*time.Hour)))
	require.NoError(t, st.InsertCheer(base.Add(2*time.Minute), base.Add(3*time.Hour), 500, "viewer2"))

	state, err := st.LoadState(60)
	require.NoError(t, err)

	assert.Equal(t, base.Add(3*time.Hour), state.EndingAt)
}

func TestGraphPrune(t *testing.T) {
	st := openTestStore(t)

	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < 150; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.InsertGraphSample(ts, ts.Add(time.Hour)))
		require.NoError(t, st.PruneGraphSamples(120))
	}

	samples, err := st.GraphSamples()
	require.NoError(t, err)
	require.Len(t, samples, 120)

	// Oldest first, newest retained.
	assert.Equal(t, base.Add(30*time.Minute).UnixMilli(), samples[0].Timestamp)
	assert.Equal(t, base.Add(149*time.Minute).UnixMilli(), samples[119].Timestamp)
}

func TestHistoryInserts(t *testing.T) {
	st := openTestStore(t)

	ts := time.UnixMilli(1_700_000_000_000)
	endingAt := ts.Add(10 * time.Minute)

	require.NoError(t, st.InsertSubscription(ts, endingAt, 120.5, "2000", "viewer1"))
	require.NoError(t, st.InsertCheer(ts, endingAt, 250, "viewer2"))
	require.NoError(t, st.InsertSubBomb(ts, 10, "1000", "whale"))

	var seconds float64
	var plan, user string
	require.NoError(t, st.db.QueryRow(
		`SELECT seconds_per_sub, plan, user_name FROM subs`).Scan(&seconds, &plan, &user))
	assert.Equal(t, 120.5, seconds)
	assert.Equal(t, "2000", plan)
	assert.Equal(t, "viewer1", user)

	var bits int
	require.NoError(t, st.db.QueryRow(`SELECT amount_bits FROM cheers`).Scan(&bits))
	assert.Equal(t, 250, bits)

	var amount int
	require.NoError(t, st.db.QueryRow(`SELECT amount_subs FROM sub_bombs`).Scan(&amount))
	assert.Equal(t, 10, amount)
}

func TestOpenCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "nested", "data.db"))
	require.NoError(t, err)
	st.Close()
}
