package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) (string, *sql.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE tasks (id TEXT PRIMARY KEY, name TEXT, points INTEGER)`)
	require.NoError(t, err)
	return dsn, db
}

func collectAll(t *testing.T, iter PageIter) []Record {
	t.Helper()

	var all []Record
	for {
		page, err := iter.Next(context.Background())
		if err == ErrExhausted {
			return all
		}
		require.NoError(t, err)
		all = append(all, page...)
	}
}

func TestSQLClientKeysetPagination(t *testing.T) {
	dsn, db := newTestDB(t)
	for _, row := range [][]interface{}{
		{"r1", "alpha", 1},
		{"r2", "beta", 2},
		{"r3", "gamma", 3},
		{"r4", "delta", 4},
		{"r5", "epsilon", 5},
	} {
		_, err := db.Exec(`INSERT INTO tasks VALUES (?, ?, ?)`, row...)
		require.NoError(t, err)
	}

	client, err := NewSQLClient(SQLConfig{Driver: "sqlite3", DSN: dsn, PageSize: 2})
	require.NoError(t, err)
	defer client.Close()

	records := collectAll(t, client.List(context.Background(), "tasks"))
	require.Len(t, records, 5)

	// Ordered by id, id column excluded from fields
	assert.Equal(t, "r1", records[0].ID)
	assert.Equal(t, "r5", records[4].ID)
	assert.Equal(t, "alpha", records[0].Fields["name"])
	assert.NotContains(t, records[0].Fields, "id")
	assert.Equal(t, int64(3), records[2].Fields["points"])
}

func TestSQLClientEmptyTable(t *testing.T) {
	dsn, _ := newTestDB(t)

	client, err := NewSQLClient(SQLConfig{Driver: "sqlite3", DSN: dsn})
	require.NoError(t, err)
	defer client.Close()

	records := collectAll(t, client.List(context.Background(), "tasks"))
	assert.Empty(t, records)
}

func TestSQLClientMissingTable(t *testing.T) {
	dsn, _ := newTestDB(t)

	client, err := NewSQLClient(SQLConfig{Driver: "sqlite3", DSN: dsn})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.List(context.Background(), "missing").Next(context.Background())
	assert.Error(t, err)
}

func TestSQLClientRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLClient(SQLConfig{Driver: "postgres", DSN: "x"})
	assert.Error(t, err)
}

func TestNormalizeSQLValue(t *testing.T) {
	assert.Equal(t, "text", normalizeSQLValue([]byte("text")))
	assert.Equal(t, int64(5), normalizeSQLValue(int64(5)))
	assert.Nil(t, normalizeSQLValue(nil))
}
