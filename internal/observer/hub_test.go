package observer

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hopline/conductor/internal/conductor"
)

func TestHub_BroadcastsToConnectedClient(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// Give the server goroutine a moment to register the client before the
	// broadcast; ServeHTTP registers synchronously before its read loop, so
	// a brief poll rather than a fixed sleep is enough.
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, time.Millisecond)

	h.Notify(conductor.Event{ClientUniqueID: "abc", Kind: "login", Detail: "ok"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev conductor.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, "abc", ev.ClientUniqueID)
	require.Equal(t, "login", ev.Kind)
}

func TestHub_FilterRestrictsToMatchingClientUniqueID(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?client_unique_id=only-me"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, time.Millisecond)

	h.Notify(conductor.Event{ClientUniqueID: "someone-else", Kind: "login"})
	h.Notify(conductor.Event{ClientUniqueID: "only-me", Kind: "framed"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev conductor.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, "framed", ev.Kind, "the filtered-out event must not arrive first")
}

func TestHub_RemovesClientOnDisconnect(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return h.Count() == 0 }, time.Second, time.Millisecond)
}
