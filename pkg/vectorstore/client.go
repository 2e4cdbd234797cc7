// Package vectorstore provides a client for a namespaced remote vector
// database exposed over HTTP.
//
// All operations are scoped to a single opaque namespace identifier that is
// generated once per installation. Each operation is independently retried
// under a bounded policy, and a failure after retry exhaustion surfaces as
// a StoreError naming the failed operation. The client owns a local id
// cache and writes fetched records through to an optional local mirror so
// callers can browse previously fetched memories without a network round
// trip.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/recallkit/recallkit-go/pkg/ledger"
	"github.com/recallkit/recallkit-go/pkg/retry"
	"github.com/recallkit/recallkit-go/pkg/transport"
)

// Record is a stored vector with its metadata.
//
// Metadata always carries a "description" and an ISO-8601 "timestamp" key
// for records created by the pipeline.
type Record struct {
	// ID is the opaque unique identifier of the record.
	ID string `json:"id"`

	// Values is the embedding vector.
	Values []float64 `json:"values"`

	// Metadata maps string keys to string values.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is a single similarity-query result. Matches are ephemeral and
// never persisted.
type Match struct {
	// ID is the identifier of the matched record.
	ID string `json:"id"`

	// Score is the cosine similarity (0.0-1.0, higher = more similar).
	Score float64 `json:"score"`

	// Values is the embedding vector (present only when requested).
	Values []float64 `json:"values,omitempty"`

	// Metadata is the matched record's metadata (may be absent).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Mirror is a local keyed store of previously fetched records.
//
// The client writes fetched and upserted records through to the mirror and
// clears it on DeleteAll. Mirror failures never fail a remote operation;
// the mirror is a cache, not a source of truth.
type Mirror interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, bool, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Config contains configuration for creating a vector store client.
type Config struct {
	// BaseURL is the index endpoint base URL (required).
	BaseURL string

	// APIKey is the provider API key (required).
	APIKey string

	// Namespace scopes every operation (required, never empty).
	Namespace string

	// Retry is the per-operation retry policy
	// (default: 3 attempts, fixed short delay).
	Retry retry.Policy

	// Ledger receives provider-reported read/write units (optional).
	Ledger *ledger.Ledger

	// Mirror is the local mirror of fetched records (optional).
	Mirror Mirror

	// HTTPClient is a custom HTTP client (uses a default with a 30s
	// timeout if nil).
	HTTPClient *http.Client
}

// Client is a namespaced vector store client.
//
// The namespace and the local id cache are owned by exactly one Client
// instance; no other component mutates them.
type Client struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	namespace string
	retry     retry.Policy
	ledger    *ledger.Ledger
	mirror    Mirror

	mu       sync.Mutex
	knownIDs map[string]struct{}
}

// NewClient creates a new vector store client.
//
// Returns an error if the API key, base URL, or namespace is missing. These
// are hard precondition failures and are never retried.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("malformed base URL: %w", err)
	}
	if cfg.Namespace == "" {
		return nil, errors.New("namespace is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 3
	}

	return &Client{
		client:    client,
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		namespace: cfg.Namespace,
		retry:     policy,
		ledger:    cfg.Ledger,
		mirror:    cfg.Mirror,
		knownIDs:  make(map[string]struct{}),
	}, nil
}

// Namespace returns the namespace this client is scoped to.
func (c *Client) Namespace() string {
	return c.namespace
}

// CachedIDs returns a copy of the local id cache.
func (c *Client) CachedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.knownIDs))
	for id := range c.knownIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type usage struct {
	ReadUnits  int64 `json:"readUnits"`
	WriteUnits int64 `json:"writeUnits"`
}

// Query performs a top-K similarity search.
//
// Matches are returned in the provider's own ranking order (descending
// score). Read units reported by the provider are added to the ledger.
func (c *Client) Query(ctx context.Context, vector []float64, topK int, includeValues bool) ([]Match, error) {
	reqBody := struct {
		Vector          []float64 `json:"vector"`
		TopK            int       `json:"topK"`
		IncludeValues   bool      `json:"includeValues"`
		IncludeMetadata bool      `json:"includeMetadata"`
		Namespace       string    `json:"namespace"`
	}{
		Vector:          vector,
		TopK:            topK,
		IncludeValues:   includeValues,
		IncludeMetadata: true,
		Namespace:       c.namespace,
	}

	matches, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]Match, error) {
		var response struct {
			Matches []Match `json:"matches"`
			Usage   usage   `json:"usage"`
		}
		if err := c.post(ctx, "/query", reqBody, &response); err != nil {
			return nil, err
		}
		if c.ledger != nil {
			c.ledger.AddReadUnits(response.Usage.ReadUnits)
		}
		return response.Matches, nil
	})
	if err != nil {
		return nil, newStoreError(ErrKindQuery, err)
	}
	return matches, nil
}

// Upsert inserts or replaces a record by id.
//
// Upsert is idempotent: a second upsert with the same id replaces the
// vector and metadata in place. The record is written through to the local
// mirror and the id cache on success.
func (c *Client) Upsert(ctx context.Context, rec Record) error {
	reqBody := struct {
		Vectors   []Record `json:"vectors"`
		Namespace string   `json:"namespace"`
	}{
		Vectors:   []Record{rec},
		Namespace: c.namespace,
	}

	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var response struct {
			UpsertedCount int64 `json:"upsertedCount"`
			Usage         usage `json:"usage"`
		}
		if err := c.post(ctx, "/vectors/upsert", reqBody, &response); err != nil {
			return err
		}
		if c.ledger != nil {
			units := response.Usage.WriteUnits
			if units == 0 {
				units = response.UpsertedCount
			}
			c.ledger.AddWriteUnits(units)
		}
		return nil
	})
	if err != nil {
		return newStoreError(ErrKindUpsert, err)
	}

	c.mu.Lock()
	c.knownIDs[rec.ID] = struct{}{}
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Put(ctx, rec)
	}
	return nil
}

// DeleteOne removes a single record by id, in the remote store, the id
// cache, and the local mirror.
func (c *Client) DeleteOne(ctx context.Context, id string) error {
	reqBody := struct {
		IDs       []string `json:"ids"`
		Namespace string   `json:"namespace"`
	}{
		IDs:       []string{id},
		Namespace: c.namespace,
	}

	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/vectors/delete", reqBody, nil)
	})
	if err != nil {
		return newStoreError(ErrKindDelete, err)
	}

	c.mu.Lock()
	delete(c.knownIDs, id)
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Delete(ctx, id)
	}
	return nil
}

// DeleteAll removes every record in the namespace, then clears the local id
// cache and the local mirror.
func (c *Client) DeleteAll(ctx context.Context) error {
	reqBody := struct {
		DeleteAll bool   `json:"deleteAll"`
		Namespace string `json:"namespace"`
	}{
		DeleteAll: true,
		Namespace: c.namespace,
	}

	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/vectors/delete", reqBody, nil)
	})
	if err != nil {
		return newStoreError(ErrKindDelete, err)
	}

	c.mu.Lock()
	c.knownIDs = make(map[string]struct{})
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Clear(ctx)
	}
	return nil
}

// ListIDs returns the ids of every record in the namespace.
//
// The provider's list endpoint returns ids only; use FetchByIDs to load the
// full records.
func (c *Client) ListIDs(ctx context.Context) ([]string, error) {
	query := url.Values{}
	query.Set("namespace", c.namespace)

	ids, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]string, error) {
		var response struct {
			Vectors []struct {
				ID string `json:"id"`
			} `json:"vectors"`
			Usage usage `json:"usage"`
		}
		if err := c.get(ctx, "/vectors/list", query, &response); err != nil {
			return nil, err
		}
		if c.ledger != nil {
			c.ledger.AddReadUnits(response.Usage.ReadUnits)
		}
		ids := make([]string, 0, len(response.Vectors))
		for _, v := range response.Vectors {
			ids = append(ids, v.ID)
		}
		return ids, nil
	})
	if err != nil {
		return nil, newStoreError(ErrKindRefresh, err)
	}
	return ids, nil
}

// FetchByIDs loads full records for the given ids.
//
// Results are sorted descending by the parsed "timestamp" metadata value;
// records without a parseable timestamp sort last, stably, and never cause
// an error. Fetched records are written through to the local mirror.
func (c *Client) FetchByIDs(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return []Record{}, nil
	}

	query := url.Values{}
	query.Set("namespace", c.namespace)
	for _, id := range ids {
		query.Add("ids", id)
	}

	records, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]Record, error) {
		var response struct {
			Vectors map[string]Record `json:"vectors"`
			Usage   usage             `json:"usage"`
		}
		if err := c.get(ctx, "/vectors/fetch", query, &response); err != nil {
			return nil, err
		}
		if c.ledger != nil {
			c.ledger.AddReadUnits(response.Usage.ReadUnits)
		}

		records := make([]Record, 0, len(response.Vectors))
		for _, id := range ids {
			if rec, ok := response.Vectors[id]; ok {
				records = append(records, rec)
			}
		}
		return records, nil
	})
	if err != nil {
		return nil, newStoreError(ErrKindRefresh, err)
	}

	sortByTimestampDesc(records)

	if c.mirror != nil {
		for _, rec := range records {
			_ = c.mirror.Put(ctx, rec)
		}
	}
	return records, nil
}

// Refresh reloads every record in the namespace: a two-step list-then-fetch
// read that also repopulates the id cache and the local mirror.
func (c *Client) Refresh(ctx context.Context) ([]Record, error) {
	ids, err := c.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	records, err := c.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.knownIDs = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.knownIDs[id] = struct{}{}
	}
	c.mu.Unlock()

	return records, nil
}

// post sends a JSON POST request and decodes the JSON response into out
// (out may be nil when the body is irrelevant).
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	return c.roundTrip(req, out)
}

// get sends a GET request with query parameters and decodes the JSON
// response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)

	return c.roundTrip(req, out)
}

func (c *Client) roundTrip(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", transport.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: API request failed with status %d: %s", transport.ErrTransport, resp.StatusCode, string(respBody))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrDecoding, err)
	}
	return nil
}

// sortByTimestampDesc orders records newest-first by their "timestamp"
// metadata. Records lacking a parseable timestamp keep their relative order
// at the end.
func sortByTimestampDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, okI := parseTimestamp(records[i].Metadata)
		tj, okJ := parseTimestamp(records[j].Metadata)
		if okI && okJ {
			return ti.After(tj)
		}
		return okI && !okJ
	})
}

// parseTimestamp extracts the record timestamp from metadata.
func parseTimestamp(metadata map[string]string) (time.Time, bool) {
	raw, ok := metadata["timestamp"]
	if !ok || raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
