package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingtimeone/BAOYAN-Calendar/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func fakeEvents(n int) []model.Event {
	f := gofakeit.New(42)
	events := make([]model.Event, n)
	for i := range events {
		events[i] = model.Event{
			Year:        strconv.Itoa(2020 + i%5),
			School:      f.Company(),
			Begin:       "2024-01-01",
			End:         "2024-01-31",
			Description: f.Word(),
			URL:         f.URL(),
		}
	}
	return events
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate())

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrate_AdoptsExistingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec(`CREATE TABLE events (id INTEGER PRIMARY KEY AUTOINCREMENT, year TEXT, school TEXT,
		begin_time TEXT, end_time TEXT, description TEXT, url TEXT)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO events(year,school) VALUES('2023', NULL)`)
	require.NoError(t, err)

	require.NoError(t, s.Migrate())

	rows, err := s.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2023", rows[0].Year)
	assert.Empty(t, rows[0].School)
	require.NoError(t, s.Close())
}

func TestReplaceEvents_FullReplace(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := fakeEvents(25)
	n, err := s.ReplaceEvents(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	second := []model.Event{{School: "Only"}}
	n, err = s.ReplaceEvents(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Only", rows[0].School)
	assert.Greater(t, rows[0].ID, int64(25))
}

func TestReplaceEvents_MissingFieldsAreEmptyStrings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.ReplaceEvents(ctx, []model.Event{{School: "B"}})
	require.NoError(t, err)

	var nulls int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE year IS NULL OR begin_time IS NULL
		OR end_time IS NULL OR description IS NULL OR url IS NULL`).Scan(&nulls))
	assert.Zero(t, nulls)

	var begin, end string
	require.NoError(t, s.db.QueryRow(`SELECT begin_time, end_time FROM events`).Scan(&begin, &end))
	assert.Equal(t, "", begin)
	assert.Equal(t, "", end)
}

func TestReplaceEvents_EmptyClearsTable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.ReplaceEvents(ctx, fakeEvents(3))
	require.NoError(t, err)
	_, err = s.ReplaceEvents(ctx, []model.Event{})
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplaceEvents_FailureKeepsPreviousRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.ReplaceEvents(ctx, fakeEvents(4))
	require.NoError(t, err)

	_, err = s.db.Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON events
		WHEN NEW.school = 'boom' BEGIN SELECT RAISE(ABORT, 'boom rejected'); END`)
	require.NoError(t, err)

	_, err = s.ReplaceEvents(ctx, []model.Event{{School: "fine"}, {School: "boom"}})
	require.Error(t, err)

	code, ok := DriverCode(err)
	require.True(t, ok)
	assert.Equal(t, sqlite3.ErrConstraintTrigger, code)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestWriteSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "baoyan_calendar.db")
	events := fakeEvents(10)

	n, err := WriteSnapshot(ctx, path, events)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// second run with the same input: identical contents, fresh ids
	n, err = WriteSnapshot(ctx, path, events)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	rows, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	for i, r := range rows {
		assert.Equal(t, events[i].School, r.School)
		assert.Equal(t, events[i].URL, r.URL)
		assert.Empty(t, r.Source)
	}
}

func TestWriteSnapshot_BadPath(t *testing.T) {
	_, err := WriteSnapshot(context.Background(), t.TempDir(), nil)
	assert.Error(t, err)
}

func TestDriverCode_NonSQLiteError(t *testing.T) {
	_, ok := DriverCode(assert.AnError)
	assert.False(t, ok)
}
