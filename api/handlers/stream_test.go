package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/internal/events"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// signallingBus 在订阅建立后通知测试，避免事件先于订阅发布
type signallingBus struct {
	inner      *events.LocalBus
	subscribed chan struct{}
	err        error
}

func (b *signallingBus) Subscribe(ctx context.Context, id string) (*events.Subscription, error) {
	if b.err != nil {
		return nil, b.err
	}
	sub, err := b.inner.Subscribe(ctx, id)
	if err == nil {
		close(b.subscribed)
	}
	return sub, err
}

func newStreamServer(t *testing.T, f *sessionFixture, bus EventSubscriber) *httptest.Server {
	t.Helper()
	h := NewStreamHandler(f.manager, bus, zap.NewNop(), WithPingInterval(0))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/{id}/stream", h.HandleStream)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestStreamHandler_RelaysTurnsUntilEnd(t *testing.T) {
	f := newSessionFixture(t)
	id := f.create(t).SessionID

	bus := &signallingBus{inner: f.bus, subscribed: make(chan struct{})}
	srv := newStreamServer(t, f, bus)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/v1/sessions/"+id+"/stream"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	select {
	case <-bus.subscribed:
	case <-ctx.Done():
		t.Fatal("stream never subscribed")
	}

	_, err = f.manager.Advance(ctx, id)
	require.NoError(t, err)

	var evt conversation.Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, conversation.EventTurn, evt.Type)
	assert.Equal(t, id, evt.SessionID)
	assert.Equal(t, persona.FacilitatorID, evt.Agent)
	require.NotNil(t, evt.Turn)
	assert.Equal(t, 1, *evt.Turn)

	require.NoError(t, f.manager.Stop(ctx, id))

	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, conversation.EventEnd, evt.Type)
	assert.Equal(t, 2, evt.Turns)
	assert.Contains(t, evt.Summary, "Define pricing")

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestStreamHandler_UnknownSession(t *testing.T) {
	f := newSessionFixture(t)
	srv := newStreamServer(t, f, f.bus)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/missing/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamHandler_SubscribeFailureClosesWithInternalError(t *testing.T) {
	f := newSessionFixture(t)
	id := f.create(t).SessionID
	srv := newStreamServer(t, f, &signallingBus{err: errors.New("redis down")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/v1/sessions/"+id+"/stream"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
}

func TestStreamHandler_DrainClosesOpenStreams(t *testing.T) {
	f := newSessionFixture(t)
	id := f.create(t).SessionID

	bus := &signallingBus{inner: f.bus, subscribed: make(chan struct{})}
	h := NewStreamHandler(f.manager, bus, zap.NewNop(), WithPingInterval(0))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/{id}/stream", h.HandleStream)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/v1/sessions/"+id+"/stream"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	<-bus.subscribed

	h.Drain()
	h.Drain()

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	resp, err := http.Get(srv.URL + "/api/v1/sessions/" + id + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
