package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"gallery/internal/events"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStream_RequiresUpgrade(t *testing.T) {
	h := newHarness(t)
	resp := h.request(http.MethodGet, "/ws/events", nil, "", "")
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestEventStream_ForwardsEvents(t *testing.T) {
	h := newHarness(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = h.app.Listener(ln) }()
	t.Cleanup(func() { _ = h.app.ShutdownWithTimeout(time.Second) })

	conn, _, err := gorillaws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/events", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return h.srv.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	count := 7
	h.srv.handleEvent(context.Background(), events.Event{Type: events.TypeImageLiked, ImageID: "img-1", LikeCount: &count})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.TypeImageLiked, got.Type)
	assert.Equal(t, "img-1", got.ImageID)
	require.NotNil(t, got.LikeCount)
	assert.Equal(t, 7, *got.LikeCount)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.srv.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
