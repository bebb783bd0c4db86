package realtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebsocketDialer is the primary transport: a persistent websocket carrying
// JSON event frames.
type WebsocketDialer struct {
	// URL is the websocket endpoint, e.g. "wss://realtime.tempo.app/v1/socket".
	URL string

	// HTTPClient is used for the opening handshake. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Dial opens the websocket with the bearer credential in the handshake.
func (d *WebsocketDialer) Dial(ctx context.Context, token string) (Transport, error) {
	opts := &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	}

	conn, _, err := websocket.Dial(ctx, d.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("realtime: websocket dial %s: %w", d.URL, err)
	}

	return &websocketTransport{conn: conn}, nil
}

type websocketTransport struct {
	conn *websocket.Conn
}

func (t *websocketTransport) Read(ctx context.Context) (Event, error) {
	var ev Event
	if err := wsjson.Read(ctx, t.conn, &ev); err != nil {
		return Event{}, fmt.Errorf("realtime: websocket read: %w", err)
	}

	return ev, nil
}

func (t *websocketTransport) Write(ctx context.Context, ev Event) error {
	if err := wsjson.Write(ctx, t.conn, ev); err != nil {
		return fmt.Errorf("realtime: websocket write: %w", err)
	}

	return nil
}

func (t *websocketTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}

func (t *websocketTransport) Mode() string { return "websocket" }
