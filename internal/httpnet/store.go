package httpnet

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BharathGovindula/medisync/internal/errors"
	"github.com/BharathGovindula/medisync/internal/models"
)

// Store persists the transport layer's cached responses and retry queue.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CachedResponse returns the stored copy for a cache key, or nil when
// none exists.
func (s *Store) CachedResponse(ctx context.Context, key string) (*models.CachedResponse, error) {
	var (
		cached   models.CachedResponse
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT cache_key, status_code, content_type, body, stored_at
	FROM cached_responses WHERE cache_key = ?`, key).Scan(
		&cached.CacheKey, &cached.StatusCode, &cached.ContentType, &cached.Body, &storedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "failed to read cached response", err)
	}
	cached.StoredAt = time.UnixMilli(storedAt).UTC()
	return &cached, nil
}

// PutCachedResponse stores or replaces the cached copy for a key.
func (s *Store) PutCachedResponse(ctx context.Context, key string, statusCode int, contentType string, body []byte, storedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO cached_responses (cache_key, status_code, content_type, body, stored_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		body = excluded.body,
		stored_at = excluded.stored_at`,
		key, statusCode, contentType, body, storedAt.UnixMilli())
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to cache response", err)
	}
	return nil
}

// QueueRequest persists a failed mutating request for later replay.
func (s *Store) QueueRequest(ctx context.Context, method, url string, header http.Header, body []byte, queuedAt time.Time) error {
	headers, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode request headers", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO retry_requests (id, method, url, headers, body, queued_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), method, url, string(headers), body, queuedAt.UnixMilli())
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to queue request", err)
	}
	return nil
}

// PendingRequests returns queued requests in capture order.
func (s *Store) PendingRequests(ctx context.Context) ([]models.RetryRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT seq, id, method, url, headers, body, queued_at
	FROM retry_requests ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "failed to read retry queue", err)
	}
	defer rows.Close()

	var pending []models.RetryRequest
	for rows.Next() {
		var (
			r        models.RetryRequest
			queuedAt int64
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.Method, &r.URL, &r.Headers, &r.Body, &queuedAt); err != nil {
			return nil, errors.Wrap(errors.ErrStorage, "failed to scan retry request", err)
		}
		r.QueuedAt = time.UnixMilli(queuedAt).UTC()
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStorage, "failed to read retry queue", err)
	}
	return pending, nil
}

// DeleteRequest removes one queued request by identity.
func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM retry_requests WHERE id = ?", id); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to delete retry request", err)
	}
	return nil
}

// PendingCount returns the size of the retry queue.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM retry_requests").Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrStorage, "failed to count retry queue", err)
	}
	return n, nil
}
