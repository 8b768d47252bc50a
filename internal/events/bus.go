package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/agent/conversation"
)

// ChannelPrefix 会话事件频道前缀，频道名为 "ws:<session_id>"
const ChannelPrefix = "ws:"

// subscriberBuffer 每个订阅者的缓冲事件数
const subscriberBuffer = 64

// ErrBusClosed 总线已关闭
var ErrBusClosed = errors.New("event bus closed")

// Channel 返回会话事件频道名
func Channel(sessionID string) string {
	return ChannelPrefix + sessionID
}

// Bus 会话事件总线：发布端供编排器使用，订阅端供 WebSocket 推送使用
type Bus interface {
	conversation.EventSink
	Subscribe(ctx context.Context, sessionID string) (*Subscription, error)
	Close() error
}

// Subscription 一个会话的事件订阅
type Subscription struct {
	C <-chan conversation.Event

	once    sync.Once
	closeFn func()
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() {
	s.once.Do(s.closeFn)
}

// =============================================================================
// 📡 Redis 实现
// =============================================================================

// RedisBus 基于 Redis Pub/Sub，多实例部署时事件可跨进程送达
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus 创建 Redis 事件总线
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{
		client: client,
		logger: logger.With(zap.String("component", "event_bus")),
	}
}

// Publish 实现 conversation.EventSink
func (b *RedisBus) Publish(ctx context.Context, event conversation.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(event.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Subscribe 订阅会话频道。返回前确认订阅已建立，之后发布的事件不会丢失。
// ctx 结束或调用 Close 时订阅终止，C 随之关闭。
func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(sessionID), err)
	}

	out := make(chan conversation.Event, subscriberBuffer)
	done := make(chan struct{})
	sub := &Subscription{C: out}
	sub.closeFn = func() {
		close(done)
		_ = ps.Close()
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event conversation.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping malformed event",
						zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				case <-ctx.Done():
					sub.Close()
					return
				}
			}
		}
	}()

	return sub, nil
}

// Close 客户端由 cache.Manager 持有，这里无需释放
func (b *RedisBus) Close() error { return nil }

// =============================================================================
// 🏠 进程内实现
// =============================================================================

// LocalBus 进程内扇出，未配置 Redis 时使用。
// 慢订阅者的缓冲区写满后丢弃新事件，不阻塞编排器。
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[chan conversation.Event]struct{}
	closed bool
	logger *zap.Logger
}

var _ Bus = (*LocalBus)(nil)

// NewLocalBus 创建进程内事件总线
func NewLocalBus(logger *zap.Logger) *LocalBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalBus{
		subs:   make(map[string]map[chan conversation.Event]struct{}),
		logger: logger.With(zap.String("component", "event_bus")),
	}
}

// Publish 实现 conversation.EventSink
func (b *LocalBus) Publish(_ context.Context, event conversation.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for ch := range b.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("subscriber buffer full, dropping event",
				zap.String("session_id", event.SessionID), zap.String("type", event.Type))
		}
	}
	return nil
}

// Subscribe 订阅会话事件
func (b *LocalBus) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	ch := make(chan conversation.Event, subscriberBuffer)
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan conversation.Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}

	done := make(chan struct{})
	sub := &Subscription{C: ch}
	sub.closeFn = func() {
		close(done)
		b.remove(sessionID, ch)
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
	return sub, nil
}

func (b *LocalBus) remove(sessionID string, ch chan conversation.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(b.subs, sessionID)
	}
}

// Close 关闭所有订阅
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, id)
	}
	return nil
}
