package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Long-poll endpoints relative to the API base URL.
const (
	longPollEventsPath = "realtime/poll"
	longPollEmitPath   = "realtime/events"
)

// Requester performs authenticated HTTP requests. Satisfied by *api.Client.
type Requester interface {
	Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error)
}

// LongPollDialer is the degraded fallback transport: server-pushed events
// are fetched with blocking GET requests and client events are POSTed.
// Event semantics are identical to the websocket transport — only delivery
// latency differs.
type LongPollDialer struct {
	Client Requester
}

// errTransportClosed is returned by Read once Close has been called.
var errTransportClosed = errors.New("realtime: long-poll transport closed")

// Dial validates connectivity with a zero-wait poll and returns the
// transport. The credential rides inside the Requester, which reads it at
// call time.
func (d *LongPollDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	lifetime, cancel := context.WithCancel(context.Background())
	t := &longPollTransport{client: d.Client, lifetime: lifetime, cancel: cancel}

	// A zero-wait poll both authenticates and primes the buffer, so a dial
	// only succeeds against a reachable backend — mirroring the websocket
	// handshake.
	events, err := t.poll(ctx, true)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("realtime: long-poll handshake: %w", err)
	}

	t.buffered = events

	return t, nil
}

type longPollTransport struct {
	client   Requester
	buffered []Event

	// lifetime spans Dial to Close. Its cancellation aborts an in-flight
	// poll so a blocked Read unblocks with an error, matching the websocket
	// transport's Close semantics.
	lifetime context.Context
	cancel   context.CancelFunc
}

func (t *longPollTransport) Read(ctx context.Context) (Event, error) {
	if t.lifetime.Err() != nil {
		return Event{}, errTransportClosed
	}

	// Polls stop on either the caller's context or Close.
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	unhook := context.AfterFunc(t.lifetime, stop)
	defer unhook()

	for len(t.buffered) == 0 {
		if err := ctx.Err(); err != nil {
			if t.lifetime.Err() != nil {
				return Event{}, errTransportClosed
			}

			return Event{}, err
		}

		events, err := t.poll(ctx, false)
		if err != nil {
			if t.lifetime.Err() != nil {
				return Event{}, errTransportClosed
			}

			return Event{}, err
		}

		t.buffered = events
	}

	ev := t.buffered[0]
	t.buffered = t.buffered[1:]

	return ev, nil
}

func (t *longPollTransport) Write(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encoding event: %w", err)
	}

	resp, err := t.client.Do(ctx, http.MethodPost, longPollEmitPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("realtime: long-poll emit: %w", err)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return nil
}

func (t *longPollTransport) Close() error {
	t.cancel()
	return nil
}

func (t *longPollTransport) Mode() string { return "longpoll" }

// poll fetches the next batch of server events. An immediate poll returns
// without waiting; otherwise the server holds the request until events
// arrive or its poll window expires, returning an empty batch.
func (t *longPollTransport) poll(ctx context.Context, immediate bool) ([]Event, error) {
	path := longPollEventsPath
	if immediate {
		path += "?wait=0"
	}

	resp, err := t.client.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("realtime: decoding poll response: %w", err)
	}

	return events, nil
}
