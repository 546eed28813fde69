package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribedSocket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(rdb, "library:realtime", nil, zerolog.Nop())
	require.NoError(t, hub.Start(ctx))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"), "ADMIN")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=KCL-00001"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected("ADMIN") == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Connected("KCL-00001"))

	require.NoError(t, hub.Publish(ctx, "ADMIN", "notification", map[string]string{"title": "Forgotten logout"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "notification", msg.Event)
	assert.Equal(t, "ADMIN", msg.Receiver)
	assert.JSONEq(t, `{"title":"Forgotten logout"}`, string(msg.Data))

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connected("ADMIN") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDeliverSkipsOtherReceivers(t *testing.T) {
	hub := NewHub(nil, "x", nil, zerolog.Nop())
	c := &client{keys: []string{"KC-23-A-00243"}, send: make(chan []byte, 1)}
	hub.register(c)

	hub.deliver(Message{Receiver: "KCL-00001"}, []byte("a"))
	assert.Len(t, c.send, 0)

	hub.deliver(Message{Receiver: "KC-23-A-00243"}, []byte("b"))
	assert.Equal(t, []byte("b"), <-c.send)

	hub.unregister(c)
	assert.Zero(t, hub.Connected("KC-23-A-00243"))
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(nil, "x", []string{"http://localhost:3000"}, zerolog.Nop())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, hub.upgrader.CheckOrigin(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, hub.upgrader.CheckOrigin(r))
}
