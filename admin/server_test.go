package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gridwatch/gridwatch/source"
	"github.com/gridwatch/gridwatch/store"
	"github.com/gridwatch/gridwatch/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	records map[string][]source.Record
}

func (s *staticSource) List(ctx context.Context, table string) source.PageIter {
	return &staticIter{records: s.records[table]}
}

func (s *staticSource) Close() error { return nil }

type staticIter struct {
	records []source.Record
	done    bool
}

func (it *staticIter) Next(ctx context.Context) ([]source.Record, error) {
	if it.done {
		return nil, source.ErrExhausted
	}
	it.done = true
	return it.records, nil
}

func adminFixture(t *testing.T) (*Server, *watch.Connector, *staticSource) {
	t.Helper()

	src := &staticSource{records: map[string][]source.Record{}}
	conn := watch.NewConnector(watch.ConnectorConfig{
		ConnectorID: 7,
		Source:      src,
		Store:       store.NewMemoryStore(),
	})
	conn.Subscribe("tasks", watch.Added, false, func(watch.Event) error { return nil }, "")

	return NewServer(conn, "127.0.0.1:0"), conn, src
}

func getJSON(t *testing.T, handler http.Handler, path string, out interface{}) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestStatusEndpoint(t *testing.T) {
	srv, conn, src := adminFixture(t)

	src.records["tasks"] = []source.Record{
		{ID: "a", Fields: map[string]interface{}{"v": int64(1)}},
	}
	require.NoError(t, conn.RunOnce(context.Background()))

	var status watch.RunStats
	code := getJSON(t, srv.Handler(), "/admin/status", &status)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, status.Failed)
	assert.False(t, status.At.IsZero())
	require.Contains(t, status.Tables, "tasks")
	assert.Equal(t, 1, status.Tables["tasks"].Records)
}

func TestTablesEndpoint(t *testing.T) {
	srv, _, _ := adminFixture(t)

	var body struct {
		Tables []string `json:"tables"`
	}
	code := getJSON(t, srv.Handler(), "/admin/tables", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"tasks"}, body.Tables)
}

func TestBufferEndpoint(t *testing.T) {
	srv, conn, src := adminFixture(t)
	ctx := context.Background()

	src.records["tasks"] = []source.Record{
		{ID: "a", Fields: map[string]interface{}{"v": int64(1)}},
	}
	require.NoError(t, conn.RunOnce(ctx))

	// Change a so it enters the reconciliation buffer.
	src.records["tasks"] = []source.Record{
		{ID: "a", Fields: map[string]interface{}{"v": int64(2)}},
	}
	require.NoError(t, conn.RunOnce(ctx))

	var body struct {
		Table   string                            `json:"table"`
		Pending map[string]map[string]interface{} `json:"pending"`
	}
	code := getJSON(t, srv.Handler(), "/admin/buffer/tasks", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tasks", body.Table)
	assert.Contains(t, body.Pending, "a")
}

func TestMetricsAbsentWhenDisabled(t *testing.T) {
	srv, _, _ := adminFixture(t)

	code := getJSON(t, srv.Handler(), "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStartAndStop(t *testing.T) {
	srv, _, _ := adminFixture(t)

	require.NoError(t, srv.Start())
	assert.NoError(t, srv.Stop())
}
