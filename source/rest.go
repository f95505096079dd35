package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

const schemaCacheSize = 128

// RESTClient reads tables from an offset-paginated HTTP JSON API:
//
//	GET {base}/{table}?page_size=N[&offset=O]
//	-> {"records": [{"id": "...", "fields": {...}}, ...], "offset": "..."}
//
// An empty or missing offset in the response ends pagination. Field names
// observed per table are kept in an LRU cache for the admin endpoint.
type RESTClient struct {
	baseURL    string
	token      string
	pageSize   int
	maxRetries int
	httpClient *http.Client

	schemas *lru.Cache[string, []string]
}

var _ Client = (*RESTClient)(nil)

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	BaseURL    string
	Token      string
	PageSize   int
	MaxRetries int           // Per-page retry attempts (default 3)
	Timeout    time.Duration // Per-request timeout (default 15s)
}

// NewRESTClient creates a client for an offset-paginated record API.
func NewRESTClient(config RESTConfig) (*RESTClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("rest client requires a base URL")
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	schemas, err := lru.New[string, []string](schemaCacheSize)
	if err != nil {
		return nil, err
	}

	return &RESTClient{
		baseURL:    config.BaseURL,
		token:      config.Token,
		pageSize:   config.PageSize,
		maxRetries: config.MaxRetries,
		httpClient: &http.Client{Timeout: config.Timeout},
		schemas:    schemas,
	}, nil
}

// List starts a paginated read of table.
func (c *RESTClient) List(ctx context.Context, table string) PageIter {
	return &restPageIter{client: c, table: table}
}

// Schema returns the sorted field names last observed for table.
func (c *RESTClient) Schema(table string) ([]string, bool) {
	return c.schemas.Get(table)
}

// Close releases idle connections.
func (c *RESTClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type restRecord struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

type restPage struct {
	Records []restRecord `json:"records"`
	Offset  string       `json:"offset"`
}

type restPageIter struct {
	client *RESTClient
	table  string
	offset string
	done   bool
}

// Next fetches the next page, retrying transient failures with exponential
// backoff. A non-2xx status or decode failure after all retries fails the
// whole table fetch for this tick.
func (it *restPageIter) Next(ctx context.Context) ([]Record, error) {
	if it.done {
		return nil, ErrExhausted
	}

	var page restPage
	fetch := func() error {
		p, err := it.client.fetchPage(ctx, it.table, it.offset)
		if err != nil {
			return err
		}
		page = p
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(it.client.maxRetries)),
		ctx,
	)
	if err := backoff.Retry(fetch, policy); err != nil {
		it.done = true
		return nil, fmt.Errorf("list %s: %w", it.table, err)
	}

	records := make([]Record, 0, len(page.Records))
	for _, r := range page.Records {
		fields := r.Fields
		if fields == nil {
			fields = map[string]interface{}{}
		}
		records = append(records, Record{ID: r.ID, Fields: fields})
	}

	it.client.rememberSchema(it.table, records)

	if page.Offset == "" {
		it.done = true
	} else {
		it.offset = page.Offset
	}
	return records, nil
}

func (c *RESTClient) fetchPage(ctx context.Context, table, offset string) (restPage, error) {
	u := fmt.Sprintf("%s/%s?page_size=%s", c.baseURL, url.PathEscape(table), strconv.Itoa(c.pageSize))
	if offset != "" {
		u += "&offset=" + url.QueryEscape(offset)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return restPage{}, backoff.Permanent(err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return restPage{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		// Retryable
		io.Copy(io.Discard, resp.Body)
		return restPage{}, fmt.Errorf("status %d listing %s", resp.StatusCode, table)
	default:
		io.Copy(io.Discard, resp.Body)
		return restPage{}, backoff.Permanent(fmt.Errorf("status %d listing %s", resp.StatusCode, table))
	}

	var page restPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return restPage{}, backoff.Permanent(fmt.Errorf("decoding %s page: %w", table, err))
	}
	return page, nil
}

// rememberSchema merges field names from records into the per-table cache.
func (c *RESTClient) rememberSchema(table string, records []Record) {
	if len(records) == 0 {
		return
	}

	seen := map[string]struct{}{}
	if prev, ok := c.schemas.Get(table); ok {
		for _, name := range prev {
			seen[name] = struct{}{}
		}
	}
	for _, r := range records {
		for name := range r.Fields {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	if evicted := c.schemas.Add(table, names); evicted {
		log.Debug().Str("table", table).Msg("Schema cache evicted an entry")
	}
}
