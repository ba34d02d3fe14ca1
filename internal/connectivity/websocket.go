package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BharathGovindula/medisync/internal/logging"
)

// WebSocketSource observes connectivity through a persistent WebSocket
// to the server's events endpoint. An open socket means online; a
// failed dial or a dropped connection means offline. This is a push
// signal from the platform connection, not a per-request heuristic.
type WebSocketSource struct {
	// URL is the ws:// or wss:// events endpoint.
	URL string

	// Header is attached to the dial request (credential, origin).
	Header http.Header

	// RedialInterval is the pause between reconnect attempts while
	// offline. Defaults to 10 seconds.
	RedialInterval time.Duration

	// PingInterval is the keepalive cadence on an open socket.
	// Defaults to 30 seconds.
	PingInterval time.Duration

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// States implements Source. The channel closes when ctx is done.
func (s *WebSocketSource) States(ctx context.Context) <-chan State {
	redial := s.RedialInterval
	if redial <= 0 {
		redial = 10 * time.Second
	}
	ping := s.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ch := make(chan State, 1)
	go func() {
		defer close(ch)
		for {
			conn, resp, err := dialer.DialContext(ctx, s.URL, s.Header)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.Debug("Connectivity probe dial failed", map[string]interface{}{"error": err.Error()})
				if !emit(ctx, ch, Offline) {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(redial):
				}
				continue
			}

			if !emit(ctx, ch, Online) {
				conn.Close()
				return
			}
			s.hold(ctx, conn, ping)
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			if !emit(ctx, ch, Offline) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(redial):
			}
		}
	}()
	return ch
}

// hold keeps the socket alive with pings and returns when it breaks.
func (s *WebSocketSource) hold(ctx context.Context, conn *websocket.Conn, ping time.Duration) {
	conn.SetReadDeadline(time.Now().Add(2 * ping))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * ping))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			// Server payloads are irrelevant here; reads exist to surface
			// pongs and connection loss.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// emit sends a state unless ctx is done; reports whether to continue.
func emit(ctx context.Context, ch chan<- State, state State) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- state:
		return true
	}
}
