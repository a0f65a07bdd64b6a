package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/coder/websocket"

	"github.com/hopline/conductor/internal/conductor"
)

// Watch connects to a Hub's ServeHTTP endpoint and invokes onEvent for
// every decoded conductor.Event until ctx is canceled or the connection
// drops. clientUniqueID may be empty to watch every session.
func Watch(ctx context.Context, wsURL, clientUniqueID string, onEvent func(conductor.Event)) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("observer: parse url %q: %w", wsURL, err)
	}
	if clientUniqueID != "" {
		q := u.Query()
		q.Set("client_unique_id", clientUniqueID)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("observer: dial %s: %w", u.String(), err)
	}
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("observer: read: %w", err)
		}
		var ev conductor.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		onEvent(ev)
	}
}
