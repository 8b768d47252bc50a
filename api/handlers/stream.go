package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/internal/events"
	"github.com/BaSui01/debatehub/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 实时发言推送（WebSocket）
// =============================================================================

// EventSubscriber 订阅会话事件，events.Bus 实现
type EventSubscriber interface {
	Subscribe(ctx context.Context, sessionID string) (*events.Subscription, error)
}

// SessionLookup 校验会话存在，conversation.Manager 实现
type SessionLookup interface {
	Status(ctx context.Context, id string) (conversation.Status, error)
}

// StreamOption 配置 StreamHandler
type StreamOption func(*StreamHandler)

// WithOriginPatterns 允许的跨域 Origin（见 websocket.AcceptOptions）
func WithOriginPatterns(patterns ...string) StreamOption {
	return func(h *StreamHandler) { h.originPatterns = patterns }
}

// WithPingInterval 心跳间隔，<=0 关闭心跳
func WithPingInterval(d time.Duration) StreamOption {
	return func(h *StreamHandler) { h.pingInterval = d }
}

// StreamHandler GET /api/v1/sessions/{id}/stream，把会话事件转发给 WebSocket 客户端。
// 收到 end 事件后以正常关闭码断开。
type StreamHandler struct {
	sessions       SessionLookup
	bus            EventSubscriber
	logger         *zap.Logger
	originPatterns []string
	pingInterval   time.Duration
	writeTimeout   time.Duration

	draining  chan struct{}
	drainOnce sync.Once
}

// NewStreamHandler 创建推送处理器
func NewStreamHandler(sessions SessionLookup, bus EventSubscriber, logger *zap.Logger, opts ...StreamOption) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &StreamHandler{
		sessions:     sessions,
		bus:          bus,
		logger:       logger.With(zap.String("handler", "stream")),
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		draining:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStream 升级为 WebSocket 并推送事件
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.sessions.Status(r.Context(), id); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	select {
	case <-h.draining:
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "server is shutting down", h.logger)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Debug("websocket accept failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端只收不发；CloseRead 负责处理控制帧，连接断开时取消 ctx
	ctx := conn.CloseRead(r.Context())

	sub, err := h.bus.Subscribe(ctx, id)
	if err != nil {
		h.logger.Warn("event subscribe failed", zap.String("session_id", id), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Close()

	h.logger.Debug("stream opened", zap.String("session_id", id))

	var ping <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.draining:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case evt, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if err := h.write(ctx, conn, evt); err != nil {
				h.logger.Debug("stream write failed", zap.String("session_id", id), zap.Error(err))
				return
			}
			if evt.Type == conversation.EventEnd {
				_ = conn.Close(websocket.StatusNormalClosure, "meeting closed")
				return
			}
		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Debug("stream ping failed", zap.String("session_id", id), zap.Error(err))
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, evt conversation.Event) error {
	wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, evt)
}

// Drain 断开所有推送连接并拒绝新连接，由服务器关闭时调用
func (h *StreamHandler) Drain() {
	h.drainOnce.Do(func() { close(h.draining) })
}
