// Package httpnet provides unit tests for the transport durability net.
package httpnet

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BharathGovindula/medisync/internal/db"
)

// fakeBase is a scriptable base RoundTripper.
type fakeBase struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(req *http.Request) (*http.Response, error)
}

type recordedRequest struct {
	Method string
	URL    string
	Body   string
}

func (f *fakeBase) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Body:   string(body),
	})
	respond := f.respond
	f.mu.Unlock()
	return respond(req)
}

func (f *fakeBase) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeBase) setRespond(fn func(req *http.Request) (*http.Response, error)) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

func okResponse(body string) func(req *http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

func transportDown(req *http.Request) (*http.Response, error) {
	return nil, &url.Error{Op: "Get", URL: req.URL.String(), Err: io.EOF}
}

// openTestTransport builds a Transport over a throwaway database.
func openTestTransport(t *testing.T, base *fakeBase) (*Transport, *Store) {
	t.Helper()
	database, err := db.OpenAndMigrate(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	store := NewStore(database.DB)
	return NewTransport(base, store), store
}

func getRequest(t *testing.T, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	return req
}

func postRequest(t *testing.T, rawURL, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, rawURL, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// TestNetworkFirstServesCacheOnFailure tests that a read served once
// from the network survives a later outage.
func TestNetworkFirstServesCacheOnFailure(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(okResponse(`[{"id":"rem1"}]`))
	transport, _ := openTestTransport(t, base)

	resp, err := transport.RoundTrip(getRequest(t, "http://api.test/api/reminders"))
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `[{"id":"rem1"}]` {
		t.Errorf("Unexpected first body: %s", body)
	}

	base.setRespond(transportDown)
	resp, err = transport.RoundTrip(getRequest(t, "http://api.test/api/reminders"))
	if err != nil {
		t.Fatalf("Expected cached response during outage, got error: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `[{"id":"rem1"}]` {
		t.Errorf("Unexpected cached body: %s", body)
	}
	if resp.Header.Get("X-Medisync-Cache") != "hit" {
		t.Error("Expected cache hit marker header")
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Expected cached content type, got %s", resp.Header.Get("Content-Type"))
	}
}

// TestNetworkFirstServerErrorOnCacheMiss tests that a 5xx with nothing
// cached reaches the caller as-is, without a duplicate request.
func TestNetworkFirstServerErrorOnCacheMiss(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       io.NopCloser(strings.NewReader(`{"message":"maintenance"}`)),
			Request:    req,
		}, nil
	})
	transport, _ := openTestTransport(t, base)

	resp, err := transport.RoundTrip(getRequest(t, "http://api.test/api/reminders"))
	if err != nil {
		t.Fatalf("Expected the server response to pass through, got error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 to reach the caller, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"message":"maintenance"}` {
		t.Errorf("Expected original body, got %s", body)
	}
	if got := base.recorded(); len(got) != 1 {
		t.Errorf("Expected exactly one network request, got %d", len(got))
	}
}

// TestNetworkFirstServesCacheOnServerError tests that a 5xx falls back
// to the cached copy when one exists.
func TestNetworkFirstServesCacheOnServerError(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(okResponse(`[{"id":"rem1"}]`))
	transport, _ := openTestTransport(t, base)

	resp, err := transport.RoundTrip(getRequest(t, "http://api.test/api/reminders"))
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	resp.Body.Close()

	base.setRespond(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       io.NopCloser(strings.NewReader("")),
			Request:    req,
		}, nil
	})
	resp, err = transport.RoundTrip(getRequest(t, "http://api.test/api/reminders"))
	if err != nil {
		t.Fatalf("Expected cached response, got error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `[{"id":"rem1"}]` {
		t.Errorf("Expected cached body, got %s", body)
	}
	if resp.Header.Get("X-Medisync-Cache") != "hit" {
		t.Error("Expected cache hit marker header")
	}
}

// TestNetworkFirstWithoutCacheFails tests a cold cache during an outage.
func TestNetworkFirstWithoutCacheFails(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(transportDown)
	transport, _ := openTestTransport(t, base)

	_, err := transport.RoundTrip(getRequest(t, "http://api.test/api/medications"))
	if err == nil {
		t.Fatal("Expected error with empty cache")
	}
}

// TestSendOrQueuePersistsFailedMutation tests that a failed log POST is
// queued for replay while the caller still sees the failure.
func TestSendOrQueuePersistsFailedMutation(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(transportDown)
	transport, store := openTestTransport(t, base)

	const payload = `{"status":"taken"}`
	_, err := transport.RoundTrip(postRequest(t, "http://api.test/api/medications/med1/log", payload))
	if err == nil {
		t.Fatal("Expected transport error to propagate")
	}

	n, err := store.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 queued request, got %d", n)
	}

	pending, err := store.PendingRequests(context.Background())
	if err != nil {
		t.Fatalf("PendingRequests failed: %v", err)
	}
	if pending[0].Method != http.MethodPost || string(pending[0].Body) != payload {
		t.Errorf("Unexpected queued request: %+v", pending[0])
	}
}

// TestSendOrQueueIgnoresHTTPErrors tests that an HTTP-level rejection is
// not queued; only transport failures are.
func TestSendOrQueueIgnoresHTTPErrors(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(strings.NewReader(`{"message":"nope"}`)),
			Request:    req,
		}, nil
	})
	transport, store := openTestTransport(t, base)

	resp, err := transport.RoundTrip(postRequest(t, "http://api.test/api/medications/med1/log", `{}`))
	if err != nil {
		t.Fatalf("Expected HTTP response to pass through, got %v", err)
	}
	resp.Body.Close()

	n, err := store.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected nothing queued for HTTP rejection, got %d", n)
	}
}

// TestPassthroughRoutes tests that unrecognized routes bypass both nets.
func TestPassthroughRoutes(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(okResponse(`{}`))
	transport, store := openTestTransport(t, base)

	resp, err := transport.RoundTrip(getRequest(t, "http://api.test/api/profile"))
	if err != nil {
		t.Fatalf("Passthrough request failed: %v", err)
	}
	resp.Body.Close()

	base.setRespond(transportDown)
	if _, err := transport.RoundTrip(getRequest(t, "http://api.test/api/profile")); err == nil {
		t.Error("Expected passthrough route not to be cached")
	}

	n, _ := store.PendingCount(context.Background())
	if n != 0 {
		t.Errorf("Expected nothing queued, got %d", n)
	}
}

// TestReplayPendingResendsInOrder tests a full replay pass.
func TestReplayPendingResendsInOrder(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(transportDown)
	transport, store := openTestTransport(t, base)

	for _, med := range []string{"med1", "med2"} {
		transport.RoundTrip(postRequest(t, "http://api.test/api/medications/"+med+"/log", `{"status":"taken"}`))
	}
	base.mu.Lock()
	base.requests = nil
	base.mu.Unlock()

	base.setRespond(okResponse(`{}`))
	replayed, discarded, err := transport.ReplayPending(context.Background())
	if err != nil {
		t.Fatalf("ReplayPending failed: %v", err)
	}
	if replayed != 2 || discarded != 0 {
		t.Errorf("Expected 2 replayed, got replayed=%d discarded=%d", replayed, discarded)
	}

	got := base.recorded()
	if len(got) != 2 {
		t.Fatalf("Expected 2 replay requests, got %d", len(got))
	}
	if !strings.Contains(got[0].URL, "med1") || !strings.Contains(got[1].URL, "med2") {
		t.Errorf("Expected replay in capture order, got %+v", got)
	}
	if got[0].Body != `{"status":"taken"}` {
		t.Errorf("Expected original body replayed, got %s", got[0].Body)
	}

	n, _ := store.PendingCount(context.Background())
	if n != 0 {
		t.Errorf("Expected empty retry queue after replay, got %d", n)
	}
}

// TestReplayPendingHaltsWhileOffline tests that a transport failure
// stops the pass and keeps the remainder.
func TestReplayPendingHaltsWhileOffline(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(transportDown)
	transport, store := openTestTransport(t, base)

	transport.RoundTrip(postRequest(t, "http://api.test/api/medications/med1/log", `{}`))
	transport.RoundTrip(postRequest(t, "http://api.test/api/medications/med2/log", `{}`))

	replayed, discarded, err := transport.ReplayPending(context.Background())
	if err != nil {
		t.Fatalf("ReplayPending failed: %v", err)
	}
	if replayed != 0 || discarded != 0 {
		t.Errorf("Expected nothing consumed while offline, got replayed=%d discarded=%d", replayed, discarded)
	}

	n, _ := store.PendingCount(context.Background())
	if n != 2 {
		t.Errorf("Expected 2 requests still queued, got %d", n)
	}
}

// TestReplayPendingDiscardsExpired tests the retention window.
func TestReplayPendingDiscardsExpired(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(okResponse(`{}`))
	transport, store := openTestTransport(t, base)

	stale := time.Now().Add(-25 * time.Hour)
	if err := store.QueueRequest(context.Background(), http.MethodPost,
		"http://api.test/api/medications/med1/log", http.Header{}, []byte(`{}`), stale); err != nil {
		t.Fatalf("QueueRequest failed: %v", err)
	}
	if err := store.QueueRequest(context.Background(), http.MethodPost,
		"http://api.test/api/medications/med2/log", http.Header{}, []byte(`{}`), time.Now()); err != nil {
		t.Fatalf("QueueRequest failed: %v", err)
	}

	replayed, discarded, err := transport.ReplayPending(context.Background())
	if err != nil {
		t.Fatalf("ReplayPending failed: %v", err)
	}
	if replayed != 1 || discarded != 1 {
		t.Errorf("Expected replayed=1 discarded=1, got replayed=%d discarded=%d", replayed, discarded)
	}

	got := base.recorded()
	if len(got) != 1 || !strings.Contains(got[0].URL, "med2") {
		t.Errorf("Expected only the fresh request replayed, got %+v", got)
	}
}

// TestCacheIsolatedPerURL tests that cache entries do not bleed across
// routes.
func TestCacheIsolatedPerURL(t *testing.T) {
	base := &fakeBase{}
	base.setRespond(okResponse(`["reminders"]`))
	transport, _ := openTestTransport(t, base)

	resp, err := transport.RoundTrip(getRequest(t, "http://api.test/api/reminders"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	base.setRespond(transportDown)
	if _, err := transport.RoundTrip(getRequest(t, "http://api.test/api/medications")); err == nil {
		t.Error("Expected miss for a different route")
	}
}
