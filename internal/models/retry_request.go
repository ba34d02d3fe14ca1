// Package models provides data model definitions for the medisync client.
package models

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// RetryRequest is a mutating HTTP request captured by the transport-level
// retry net after a network failure, held for later replay.
type RetryRequest struct {
	Seq      int64     `db:"seq" json:"-"`
	ID       string    `db:"id" json:"id"`
	Method   string    `db:"method" json:"method"`
	URL      string    `db:"url" json:"url"`
	Headers  string    `db:"headers" json:"headers"` // JSON-encoded header map
	Body     []byte    `db:"body" json:"body"`
	QueuedAt time.Time `db:"queued_at" json:"queuedAt"`
}

// TableName returns the table name for RetryRequest.
func (RetryRequest) TableName() string {
	return "retry_requests"
}

// Request rebuilds the captured HTTP request for replay.
func (r *RetryRequest) Request(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	if r.Headers != "" {
		var header http.Header
		if err := json.Unmarshal([]byte(r.Headers), &header); err != nil {
			return nil, err
		}
		req.Header = header
	}
	return req, nil
}

// CachedResponse is a stored copy of a successful GET response, served
// when the network is unavailable.
type CachedResponse struct {
	CacheKey    string    `db:"cache_key" json:"cacheKey"`
	StatusCode  int       `db:"status_code" json:"statusCode"`
	ContentType string    `db:"content_type" json:"contentType"`
	Body        []byte    `db:"body" json:"body"`
	StoredAt    time.Time `db:"stored_at" json:"storedAt"`
}

// TableName returns the table name for CachedResponse.
func (CachedResponse) TableName() string {
	return "cached_responses"
}
