package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/BugisoftRSG/subathon-timer/internal/timer"
)

// Schema for the subathon event store. History tables are append-only and
// keyed by insertion timestamp; settings is a primary-keyed upsert table.
// All timestamps are Unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS subs (
    timestamp        INTEGER,
    ending_at        INTEGER,
    seconds_per_sub  INTEGER,
    plan             TEXT,
    user_name        TEXT
);

CREATE TABLE IF NOT EXISTS sub_bombs (
    timestamp    INTEGER,
    amount_subs  INTEGER,
    plan         TEXT,
    user_name    TEXT
);

CREATE TABLE IF NOT EXISTS cheers (
    timestamp    INTEGER,
    ending_at    INTEGER,
    amount_bits  INTEGER,
    user_name    TEXT
);

CREATE TABLE IF NOT EXISTS graph (
    timestamp  INTEGER,
    ending_at  INTEGER
);

CREATE TABLE IF NOT EXISTS settings (
    key    TEXT PRIMARY KEY,
    value  INTEGER
);
`

// GraphSample is one point of the historical timer trajectory.
type GraphSample struct {
	Timestamp int64 `json:"timestamp"`
	EndingAt  int64 `json:"ending_at"`
}

// Store is the SQLite persistence adapter.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertSetting inserts or replaces a settings row.
func (s *Store) UpsertSetting(key string, value int64) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO settings VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

// Setting reads a settings row. The second return reports whether the row
// exists.
func (s *Store) Setting(key string) (int64, bool, error) {
	var value int64
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// InsertSubscription appends one accepted sub, resub or gift sub, with the
// resulting end instant as a running snapshot.
func (s *Store) InsertSubscription(ts, endingAt time.Time, seconds float64, plan, username string) error {
	_, err := s.db.Exec(`INSERT INTO subs VALUES (?, ?, ?, ?, ?)`,
		ts.UnixMilli(), endingAt.UnixMilli(), seconds, plan, username)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// InsertSubBomb records a mystery gift bundle announcement.
func (s *Store) InsertSubBomb(ts time.Time, amount int, plan, username string) error {
	_, err := s.db.Exec(`INSERT INTO sub_bombs VALUES (?, ?, ?, ?)`,
		ts.UnixMilli(), amount, plan, username)
	if err != nil {
		return fmt.Errorf("insert sub bomb: %w", err)
	}
	return nil
}

// InsertCheer appends one accepted cheer.
func (s *Store) InsertCheer(ts, endingAt time.Time, bits int, username string) error {
	_, err := s.db.Exec(`INSERT INTO cheers VALUES (?, ?, ?, ?)`,
		ts.UnixMilli(), endingAt.UnixMilli(), bits, username)
	if err != nil {
		return fmt.Errorf("insert cheer: %w", err)
	}
	return nil
}

// InsertGraphSample appends one point of the timer trajectory.
func (s *Store) InsertGraphSample(ts, endingAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO graph VALUES (?, ?)`, ts.UnixMilli(), endingAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert graph sample: %w", err)
	}
	return nil
}

// PruneGraphSamples deletes everything but the newest keep rows.
func (s *Store) PruneGraphSamples(keep int) error {
	_, err := s.db.Exec(
		`DELETE FROM graph WHERE timestamp IN (SELECT timestamp FROM graph ORDER BY timestamp DESC LIMIT -1 OFFSET ?)`,
		keep)
	if err != nil {
		return fmt.Errorf("prune graph samples: %w", err)
	}
	return nil
}

// GraphSamples returns the retained trajectory points, oldest first.
func (s *Store) GraphSamples() ([]GraphSample, error) {
	rows, err := s.db.Query(`SELECT timestamp, ending_at FROM graph ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("read graph samples: %w", err)
	}
	defer rows.Close()

	var samples []GraphSample
	for rows.Next() {
		var sample GraphSample
		if err := rows.Scan(&sample.Timestamp, &sample.EndingAt); err != nil {
			return nil, fmt.Errorf("scan graph sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// LoadState reconstructs the engine's boot state so a restart resumes the
// countdown instead of resetting it: started_at and base_time come from
// settings, ending_at from the newest row across the history tables.
func (s *Store) LoadState(defaultBaseTime float64) (timer.State, error) {
	state := timer.State{BaseTime: defaultBaseTime}

	startedAt, ok, err := s.Setting(timer.SettingStartedAt)
	if err != nil {
		return state, err
	}
	if ok {
		state.IsStarted = true
		state.StartedAt = time.UnixMilli(startedAt)
		log.Info().Time("started_at", state.StartedAt).Msg("found started_at in database")
	}

	baseTime, ok, err := s.Setting(timer.SettingBaseTime)
	if err != nil {
		return state, err
	}
	if ok {
		state.BaseTime = float64(baseTime)
		log.Info().Float64("base_time", state.BaseTime).Msg("found base_time in database")
	}

	var endingAt int64
	err = s.db.QueryRow(`
		SELECT ending_at FROM (
			SELECT timestamp, ending_at FROM subs
			UNION ALL SELECT timestamp, ending_at FROM cheers
			UNION ALL SELECT timestamp, ending_at FROM graph
		) ORDER BY timestamp DESC LIMIT 1`).Scan(&endingAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return state, fmt.Errorf("read last timer value: %w", err)
	}
	if err == nil {
		state.EndingAt = time.UnixMilli(endingAt)
		log.Info().Time("ending_at", state.EndingAt).Msg("found last timer value in database")
	}

	return state, nil
}
