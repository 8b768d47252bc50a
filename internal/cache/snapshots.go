package cache

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/types"
)

// SnapshotStore 将会话快照以 JSON 形式存入 Redis。
type SnapshotStore struct {
	cache  *Manager
	logger *zap.Logger
}

var _ conversation.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore 创建快照存储
func NewSnapshotStore(cache *Manager, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{
		cache:  cache,
		logger: logger.With(zap.String("component", "snapshot_store")),
	}
}

func (s *SnapshotStore) key(id string) string {
	return s.cache.Key("session", id)
}

// SaveSnapshot 覆盖写入快照并刷新过期时间
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap conversation.Snapshot) error {
	if snap.SessionID == "" {
		return types.NewError(types.ErrInvalidRequest, "snapshot has no session id")
	}
	if err := s.cache.SetJSON(ctx, s.key(snap.SessionID), snap, s.cache.config.snapshotTTL()); err != nil {
		return types.NewError(types.ErrServiceUnavailable, "save snapshot").WithCause(err)
	}
	s.logger.Debug("snapshot saved",
		zap.String("session_id", snap.SessionID),
		zap.Int("turns", len(snap.Turns)))
	return nil
}

// LoadSnapshot 读取快照并顺延过期时间；不存在时返回 SESSION_NOT_FOUND
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, id string) (conversation.Snapshot, error) {
	raw, err := s.cache.Fetch(ctx, s.key(id), s.cache.config.snapshotTTL())
	if IsCacheMiss(err) {
		return conversation.Snapshot{}, types.Errorf(types.ErrSessionNotFound, "session %s not found", id)
	}
	if err != nil {
		return conversation.Snapshot{}, types.NewError(types.ErrServiceUnavailable, "load snapshot").WithCause(err)
	}

	var snap conversation.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return conversation.Snapshot{}, types.Errorf(types.ErrSnapshotCorrupted, "snapshot %s is not valid JSON", id).WithCause(err)
	}
	if snap.SessionID != id {
		return conversation.Snapshot{}, types.Errorf(types.ErrSnapshotCorrupted, "snapshot key %s holds session %s", id, snap.SessionID)
	}
	return snap, nil
}

// DeleteSnapshot 删除快照，不存在时不报错
func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, s.key(id)); err != nil {
		return types.NewError(types.ErrServiceUnavailable, "delete snapshot").WithCause(err)
	}
	return nil
}
