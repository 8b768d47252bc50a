/*
包 events 发布与订阅辩论会话的实时事件。

每场会话对应一个频道 "ws:<session_id>"，编排器在每次发言后发布
turn 事件，会话结束时发布 end 事件。RedisBus 基于 Redis Pub/Sub，
适合多实例部署；LocalBus 在进程内扇出，用于未配置 Redis 的场景。
两者都实现 conversation.EventSink，订阅端由 WebSocket 处理器消费。
*/
package events
