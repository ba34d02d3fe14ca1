// Package httpnet is a transport-level durability net sitting below the
// application sync layer, modeled on a service worker: reminder and
// medication reads are cached network-first, and mutating requests to
// log/reminder routes that fail at the transport level are persisted
// and replayed later.
//
// The layer deliberately does not coordinate with the application's
// durable event queue. Both nets may deliver the same action; that
// duplication is tolerated under at-least-once semantics end to end.
package httpnet

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/BharathGovindula/medisync/internal/logging"
)

var (
	// Read routes served from cache when the network is down.
	cacheRoutes = regexp.MustCompile(`/api/(reminders|medications)`)

	// Mutating routes whose transport failures are queued for retry.
	retryRoutes = regexp.MustCompile(`/api/(medications/\w+/log|reminders)`)
)

const (
	// DefaultNetworkTimeout bounds the network-first attempt on cached
	// read routes before falling back to the cache.
	DefaultNetworkTimeout = 5 * time.Second

	// DefaultRetention is how long a failed mutating request stays
	// replayable.
	DefaultRetention = 24 * time.Hour
)

// Transport is an http.RoundTripper wrapping a base transport with the
// caching and retry behavior above. Routes it does not recognize pass
// through untouched.
type Transport struct {
	rt        http.RoundTripper
	store     *Store
	timeout   time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewTransport creates a Transport over base (nil means
// http.DefaultTransport) persisting through store.
func NewTransport(base http.RoundTripper, store *Store) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		rt:        base,
		store:     store,
		timeout:   DefaultNetworkTimeout,
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch {
	case req.Method == http.MethodGet && cacheRoutes.MatchString(req.URL.Path):
		return t.networkFirst(req)
	case (req.Method == http.MethodPost || req.Method == http.MethodPut) && retryRoutes.MatchString(req.URL.Path):
		return t.sendOrQueue(req)
	default:
		return t.rt.RoundTrip(req)
	}
}

// networkFirst tries the network within the timeout, refreshing the
// cache on success; on failure it serves the last cached copy. With
// nothing cached the caller gets exactly what the network produced,
// a 5xx included; the request is never re-issued.
func (t *Transport) networkFirst(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	defer cancel()

	resp, err := t.rt.RoundTrip(req.WithContext(ctx))
	if err == nil && resp.StatusCode < 500 {
		if resp.StatusCode == http.StatusOK {
			t.refreshCache(req, resp)
		} else {
			// The body must outlive the attempt's timeout context.
			bufferBody(resp)
		}
		return resp, nil
	}

	cached, cacheErr := t.store.CachedResponse(req.Context(), cacheKey(req))
	if cacheErr != nil || cached == nil {
		if resp != nil {
			bufferBody(resp)
		}
		return resp, err
	}
	if resp != nil {
		resp.Body.Close()
	}

	logging.Debug("Serving cached response", map[string]interface{}{"url": req.URL.String()})
	header := make(http.Header)
	if cached.ContentType != "" {
		header.Set("Content-Type", cached.ContentType)
	}
	header.Set("X-Medisync-Cache", "hit")
	return &http.Response{
		Status:        http.StatusText(cached.StatusCode),
		StatusCode:    cached.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(cached.Body)),
		ContentLength: int64(len(cached.Body)),
		Request:       req,
	}, nil
}

// refreshCache stores the response body and hands the response back a
// replacement reader.
func (t *Transport) refreshCache(req *http.Request, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return
	}
	if err := t.store.PutCachedResponse(req.Context(), cacheKey(req),
		resp.StatusCode, resp.Header.Get("Content-Type"), body, t.now()); err != nil {
		logging.Warn("Failed to cache response", map[string]interface{}{"error": err.Error()})
	}
}

// sendOrQueue forwards a mutating request; a transport-level failure
// persists the request for later replay. The caller still sees the
// error: the queue is a recovery mechanism, not a success.
func (t *Transport) sendOrQueue(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := t.rt.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	if qErr := t.store.QueueRequest(req.Context(), req.Method, req.URL.String(),
		req.Header, body, t.now()); qErr != nil {
		logging.Warn("Failed to queue request for retry",
			map[string]interface{}{"url": req.URL.String(), "error": qErr.Error()})
	} else {
		logging.Info("Queued failed request for retry",
			map[string]interface{}{"method": req.Method, "url": req.URL.String()})
	}
	return nil, err
}

// ReplayPending re-sends queued mutating requests in capture order.
// Entries past the retention window are discarded. Any HTTP response,
// success or not, consumes the entry; only a transport-level failure
// halts the pass, leaving the remainder for next time.
func (t *Transport) ReplayPending(ctx context.Context) (replayed, discarded int, err error) {
	pending, err := t.store.PendingRequests(ctx)
	if err != nil {
		return 0, 0, err
	}

	cutoff := t.now().Add(-t.retention)
	for i := range pending {
		r := &pending[i]

		if r.QueuedAt.Before(cutoff) {
			if err := t.store.DeleteRequest(ctx, r.ID); err != nil {
				return replayed, discarded, err
			}
			discarded++
			continue
		}

		req, buildErr := r.Request(ctx)
		if buildErr != nil {
			// Unreplayable entry; drop it rather than wedge the net.
			logging.Warn("Discarding malformed queued request",
				map[string]interface{}{"id": r.ID, "error": buildErr.Error()})
			if err := t.store.DeleteRequest(ctx, r.ID); err != nil {
				return replayed, discarded, err
			}
			discarded++
			continue
		}

		resp, sendErr := t.rt.RoundTrip(req)
		if sendErr != nil {
			// Still offline; keep this entry and the tail.
			return replayed, discarded, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := t.store.DeleteRequest(ctx, r.ID); err != nil {
			return replayed, discarded, err
		}
		replayed++
	}
	return replayed, discarded, nil
}

// bufferBody replaces a response body with an in-memory copy so it
// stays readable after the request context is cancelled.
func bufferBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		body = nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
}

// cacheKey identifies a cached read by method and full URL.
func cacheKey(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}
