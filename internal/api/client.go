// Package api provides the client for the remote medication log API.
//
// The API is an opaque collaborator: POST /api/medications/{id}/log
// appends one dose action. Idempotency is not guaranteed by the
// contract; the sync layer provides at-least-once delivery on top.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BharathGovindula/medisync/internal/errors"
	"github.com/BharathGovindula/medisync/internal/models"
)

// TokenSource supplies the opaque bearer credential attached to every
// request. Refresh and expiry are the provider's problem, not ours.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource returning a fixed credential.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// Client talks to the remote medication API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL. A nil httpClient
// gets a default with a request timeout.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// AppendLog appends one dose action to the medication's server-side log.
//
// Error classification drives the caller's recovery:
//   - NETWORK_ERROR: transport failure, timeout, throttling, or 5xx;
//     transient, safe to retry later
//   - VALIDATION_ERROR: the server permanently rejected the payload (4xx)
//   - AUTH_FAILED: credential rejected; treated like a transient failure
//     by replay since the credential provider may recover it
func (c *Client) AppendLog(ctx context.Context, medicationID string, payload models.LogPayload) error {
	if medicationID == "" {
		return errors.New(errors.ErrInvalid, "medication id is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to encode log payload", err)
	}

	endpoint := fmt.Sprintf("%s/api/medications/%s/log", c.baseURL, url.PathEscape(medicationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.Token()
	if err != nil {
		return errors.Wrap(errors.ErrAuth, "failed to obtain credential", err)
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeout, DNS, connection refused: all transport-level.
		return errors.Wrap(errors.ErrNetwork, "log append request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return classifyStatus(resp)
}

// classifyStatus maps a non-2xx response to the error taxonomy.
func classifyStatus(resp *http.Response) error {
	msg := readErrorMessage(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.ErrAuth, msg)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		// Server-side throttling and timeouts are transient.
		return errors.New(errors.ErrNetwork, msg)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errors.New(errors.ErrValidation, msg)
	default:
		return errors.New(errors.ErrNetwork, msg)
	}
}

// readErrorMessage extracts the server's error message when the body is
// the usual {"message": ...} shape, falling back to the HTTP status.
func readErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var parsed struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &parsed) == nil && parsed.Message != "" {
			return fmt.Sprintf("%s (HTTP %d)", parsed.Message, resp.StatusCode)
		}
	}
	return fmt.Sprintf("server returned HTTP %d", resp.StatusCode)
}
