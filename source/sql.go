package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"

	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// SQLClient reads tables from a database/sql source using keyset pagination
// on the identifier column. It lets the pipeline watch a plain database
// table with the same semantics as a remote API.
type SQLClient struct {
	db       *sql.DB
	dialect  goqu.DialectWrapper
	idColumn string
	pageSize int
}

var _ Client = (*SQLClient)(nil)

// SQLConfig configures a SQLClient.
type SQLConfig struct {
	Driver   string // "sqlite3" or "mysql"
	DSN      string
	IDColumn string // Identifier column, default "id"
	PageSize int
}

// NewSQLClient opens a read-only database/sql connection for polling.
func NewSQLClient(config SQLConfig) (*SQLClient, error) {
	if config.Driver != "sqlite3" && config.Driver != "mysql" {
		return nil, fmt.Errorf("unsupported sql driver: %q", config.Driver)
	}
	if config.IDColumn == "" {
		config.IDColumn = "id"
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s source: %w", config.Driver, err)
	}

	// Polling is strictly sequential per tick; one connection is enough and
	// keeps sqlite3 locking simple.
	db.SetMaxOpenConns(1)

	log.Debug().Str("driver", config.Driver).Msg("Opened sql source")

	return &SQLClient{
		db:       db,
		dialect:  goqu.Dialect(config.Driver),
		idColumn: config.IDColumn,
		pageSize: config.PageSize,
	}, nil
}

// List starts a keyset-paginated read of table ordered by the ID column.
func (c *SQLClient) List(ctx context.Context, table string) PageIter {
	return &sqlPageIter{client: c, table: table}
}

// Close closes the underlying connection pool.
func (c *SQLClient) Close() error {
	return c.db.Close()
}

type sqlPageIter struct {
	client *SQLClient
	table  string
	lastID string
	begun  bool
	done   bool
}

// Next returns the next page of rows ordered by ID.
func (it *sqlPageIter) Next(ctx context.Context) ([]Record, error) {
	if it.done {
		return nil, ErrExhausted
	}

	ds := it.client.dialect.From(it.table).
		Order(goqu.C(it.client.idColumn).Asc()).
		Limit(uint(it.client.pageSize))
	if it.begun {
		ds = ds.Where(goqu.C(it.client.idColumn).Gt(it.lastID))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		it.done = true
		return nil, fmt.Errorf("building query for %s: %w", it.table, err)
	}

	rows, err := it.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		it.done = true
		return nil, fmt.Errorf("list %s: %w", it.table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		it.done = true
		return nil, err
	}

	var records []Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			it.done = true
			return nil, err
		}

		record := Record{Fields: make(map[string]interface{}, len(columns))}
		for i, col := range columns {
			value := normalizeSQLValue(values[i])
			if col == it.client.idColumn {
				record.ID = fmt.Sprintf("%v", value)
				continue
			}
			record.Fields[col] = value
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		it.done = true
		return nil, err
	}

	if len(records) < it.client.pageSize {
		it.done = true
	}
	if len(records) > 0 {
		it.begun = true
		it.lastID = records[len(records)-1].ID
	}
	if len(records) == 0 && !it.done {
		it.done = true
	}
	if len(records) == 0 {
		return nil, ErrExhausted
	}
	return records, nil
}

// normalizeSQLValue maps driver values onto the field-map value domain.
// MySQL returns []byte for text columns; record equality must not depend
// on which driver produced the snapshot.
func normalizeSQLValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
