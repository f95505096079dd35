// Package source provides read-only clients for the remote record stores a
// connector watches. Clients expose tables as lazy page sequences; the watch
// pipeline drains them to exhaustion each tick.
package source

import (
	"context"
	"errors"
)

// ErrExhausted is returned by PageIter.Next once pagination is complete.
var ErrExhausted = errors.New("source: pagination exhausted")

// Record is one row of a watched table as seen by the source.
type Record struct {
	ID     string
	Fields map[string]interface{}
}

// PageIter yields pages of records for one table. Not safe for concurrent use.
type PageIter interface {
	// Next returns the next page, or ErrExhausted when no pages remain.
	Next(ctx context.Context) ([]Record, error)
}

// Client reads tables from a record store.
type Client interface {
	// List starts a paginated read of table.
	List(ctx context.Context, table string) PageIter

	// Close releases client resources.
	Close() error
}
