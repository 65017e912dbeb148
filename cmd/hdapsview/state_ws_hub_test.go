package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tests use Clients with a nil websocket.Conn: the hub only touches
// send channels, and closing a client only closes its channel.

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     discardLogger(),
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func runHub(t *testing.T, hub *Hub) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for hub to stop")
		}
	}
}

func recv(t *testing.T, ch <-chan []byte, who string) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed", who)
		}
		return msg
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("%s: timeout waiting for message", who)
	}
	return nil
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := NewHub(discardLogger(), HubConfig{SendBuf: 4, BroadcastBuf: 8})
	stop := runHub(t, hub)
	defer stop()

	c1 := newTestClient(hub, "c1", 4)
	c2 := newTestClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	msg := []byte(`{"type":"rotation_changed","data":{"x":8,"y":0}}`)
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		if got := recv(t, c.send, c.remoteAddr); string(got) != string(msg) {
			t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
		}
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := NewHub(discardLogger(), HubConfig{SendBuf: 1, BroadcastBuf: 8})
	stop := runHub(t, hub)
	defer stop()

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	slow.send <- []byte(`"stuck"`)

	msg := []byte(`{"type":"rotation_changed"}`)
	hub.broadcast <- msg

	if got := recv(t, fast.send, "fast"); string(got) != string(msg) {
		t.Fatalf("fast got %q", got)
	}

	<-slow.send // the pre-filled message
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")
}

func TestHub_ShutdownFlushesQueuedBroadcasts(t *testing.T) {
	hub := NewHub(discardLogger(), HubConfig{SendBuf: 4, BroadcastBuf: 8})
	ctx, cancel := context.WithCancel(context.Background())

	c := newTestClient(hub, "c", 4)
	hub.clients[c] = struct{}{}

	// Queue before the hub runs so only the shutdown drain can deliver it.
	hub.Broadcast([]byte(`{"type":"shutdown"}`))
	cancel()
	hub.Run(ctx)

	if got := recv(t, c.send, "c"); !strings.Contains(string(got), "shutdown") {
		t.Fatalf("got %q, want shutdown frame", got)
	}
	if _, ok := <-c.send; ok {
		t.Fatalf("send channel should be closed after shutdown")
	}
}

func decodeEnvelope(t *testing.T, b []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Type string         `json:"type"`
		Ts   *time.Time     `json:"ts"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal %q: %v", b, err)
	}
	if env.Ts == nil {
		t.Fatalf("message %q has no ts", b)
	}
	return env.Type, env.Data
}

func TestRunBroadcaster_CoalescesRotation(t *testing.T) {
	hub := NewHub(discardLogger(), HubConfig{BroadcastBuf: 16})
	src := make(chan StateBroadcast, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(ctx, hub, src, discardLogger())
	}()

	now := time.Now()
	src <- BroadcastRotationChanged{Rotation: Rotation{X: 5}, Offset: Rotation{X: 5}, At: now}
	src <- BroadcastRotationChanged{Rotation: Rotation{X: 9}, Offset: Rotation{X: 9}, At: now}
	src <- BroadcastRotationChanged{Rotation: Rotation{X: 12, Y: -7}, Offset: Rotation{X: 12, Y: -7}, At: now}

	// Latest wins after the coalescing window.
	msg := recv(t, hub.broadcast, "hub")
	typ, data := decodeEnvelope(t, msg)
	if typ != "rotation_changed" {
		t.Fatalf("type = %q", typ)
	}
	if data["x"].(float64) != 12 || data["y"].(float64) != -7 {
		t.Fatalf("data = %v, want latest rotation", data)
	}
	select {
	case extra := <-hub.broadcast:
		t.Fatalf("unexpected extra frame %q", extra)
	case <-time.After(2 * wsRotationCoalesceWindow):
	}

	// Shutdown flushes a pending rotation first.
	src <- BroadcastRotationChanged{Rotation: Rotation{X: 1}, At: now}
	src <- BroadcastShutdown{Reason: "key", At: now}

	typ, _ = decodeEnvelope(t, recv(t, hub.broadcast, "hub"))
	if typ != "rotation_changed" {
		t.Fatalf("first type = %q, want rotation_changed", typ)
	}
	typ, data = decodeEnvelope(t, recv(t, hub.broadcast, "hub"))
	if typ != "shutdown" || data["reason"] != "key" {
		t.Fatalf("second = %q %v, want shutdown/key", typ, data)
	}

	close(src)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcaster did not stop when source closed")
	}
}

func TestServer_StateInitOnConnect(t *testing.T) {
	src := &scriptedSource{samples: []Sample{{X: 540, Y: 512}, {X: 540, Y: 512}}}
	l := newTestLoop(src, &recordingRenderer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- l.Run(ctx) }()

	ws := NewServer(discardLogger(), l.Events(), HubConfig{})
	go ws.Hub().Run(ctx)

	srv := httptest.NewServer(ws)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	typ, data := decodeEnvelope(t, msg)
	if typ != "state_init" {
		t.Fatalf("first message type = %q, want state_init", typ)
	}
	base, ok := data["baseline"].(map[string]any)
	if !ok || base["x"].(float64) != 512 || base["y"].(float64) != 512 {
		t.Fatalf("state_init baseline = %v", data["baseline"])
	}

	cancel()
	<-loopDone
}

func hubClientCount(hub *Hub) int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.clients)
}

func TestHub_HoldsBroadcastsUntilStateInit(t *testing.T) {
	hub := NewHub(discardLogger(), HubConfig{SendBuf: 4, BroadcastBuf: 8})
	stop := runHub(t, hub)
	defer stop()

	c := newTestClient(hub, "c", 4)
	c.awaitingInit = true
	registerAndWait(t, hub, c)

	rot := []byte(`{"type":"rotation_changed"}`)
	hub.Broadcast(rot)
	select {
	case m := <-c.send:
		t.Fatalf("delivered %q before state_init", m)
	case <-time.After(50 * time.Millisecond):
	}

	initMsg := []byte(`{"type":"state_init"}`)
	hub.sendInit(c, initMsg)

	if got := recv(t, c.send, "c"); string(got) != string(initMsg) {
		t.Fatalf("first = %q, want state_init", got)
	}
	if got := recv(t, c.send, "c"); string(got) != string(rot) {
		t.Fatalf("second = %q, want held-back rotation", got)
	}
}

func TestHub_StateInitAfterLeaveIsIgnored(t *testing.T) {
	hub := NewHub(discardLogger(), HubConfig{SendBuf: 4, BroadcastBuf: 8})
	stop := runHub(t, hub)
	defer stop()

	c := newTestClient(hub, "c", 4)
	c.awaitingInit = true
	registerAndWait(t, hub, c)

	hub.leave(c)
	waitUntil(t, 500*time.Millisecond, func() bool { return hubClientCount(hub) == 0 }, "client not dropped")

	hub.sendInit(c, []byte(`{"type":"state_init"}`))
	hub.leave(c)

	if _, ok := <-c.send; ok {
		t.Fatalf("send channel should be closed")
	}
}

// syncBuffer collects the test server's error log.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestServer_ClientGoneBeforeSnapshotReply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The loop answers the snapshot request only after the client has left.
	events := make(chan Event, 4)
	asked := make(chan struct{}, 1)
	release := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				req, ok := ev.(RequestStateSnapshot)
				if !ok {
					continue
				}
				asked <- struct{}{}
				select {
				case <-release:
				case <-ctx.Done():
					return
				}
				req.Reply <- StateSnapshot{}
			}
		}
	}()

	ws := NewServer(discardLogger(), events, HubConfig{})
	go ws.Hub().Run(ctx)

	handlerDone := make(chan struct{}, 1)
	var errLog syncBuffer
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() { handlerDone <- struct{}{} }()
		ws.ServeHTTP(w, r)
	}))
	srv.Config.ErrorLog = log.New(&errLog, "", 0)
	srv.Start()
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case <-asked:
	case <-time.After(time.Second):
		t.Fatalf("snapshot was never requested")
	}
	conn.Close()

	waitUntil(t, time.Second, func() bool { return hubClientCount(ws.Hub()) == 0 }, "client not dropped after disconnect")
	close(release)

	select {
	case <-handlerDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return")
	}
	if out := errLog.String(); strings.Contains(out, "panic") {
		t.Fatalf("handler panicked: %s", out)
	}
}
