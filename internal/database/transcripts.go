package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/types"
)

// =============================================================================
// 📜 辩论记录模型
// =============================================================================

// SessionRecord 会话归档行
type SessionRecord struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Objective   string    `gorm:"type:text;not null" json:"objective"`
	Model       string    `gorm:"size:128" json:"model,omitempty"`
	Mode        string    `gorm:"size:32;not null" json:"mode"`
	Started     bool      `gorm:"not null" json:"started"`
	Active      bool      `gorm:"not null" json:"active"`
	CloseReason string    `gorm:"size:32" json:"close_reason,omitempty"`
	TurnCount   int       `gorm:"not null" json:"turn_count"`
	StartedAt   time.Time `gorm:"not null" json:"started_at"`
	UpdatedAt   time.Time `gorm:"not null;index" json:"updated_at"`
}

// TableName 表名
func (SessionRecord) TableName() string { return "debate_sessions" }

// TurnRecord 发言归档行，(session_id, turn_index) 唯一
type TurnRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID   string    `gorm:"size:64;not null;uniqueIndex:idx_debate_turns_session_turn,priority:1" json:"session_id"`
	TurnIndex   int       `gorm:"not null;uniqueIndex:idx_debate_turns_session_turn,priority:2" json:"turn_index"`
	Speaker     string    `gorm:"size:64;not null" json:"speaker"`
	SpeakerName string    `gorm:"size:128" json:"speaker_name"`
	Kind        string    `gorm:"size:16;not null" json:"kind"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	SpokenAt    time.Time `gorm:"not null" json:"spoken_at"`
}

// TableName 表名
func (TurnRecord) TableName() string { return "debate_turns" }

// Turn 转换为会话发言
func (r TurnRecord) Turn() conversation.Turn {
	return conversation.Turn{
		Index:       r.TurnIndex,
		Speaker:     r.Speaker,
		SpeakerName: r.SpeakerName,
		Content:     r.Content,
		Kind:        conversation.TurnKind(r.Kind),
		Timestamp:   r.SpokenAt,
	}
}

// Transcript 一次完整的归档查询结果
type Transcript struct {
	Session SessionRecord       `json:"session"`
	Turns   []conversation.Turn `json:"turns"`
}

// =============================================================================
// 🗃️ TranscriptRepository
// =============================================================================

// TranscriptRepository 把会话记录写入 SQL。
// 日志只追加，因此每次保存只插入库中尚未存在的发言。
type TranscriptRepository struct {
	pool       *PoolManager
	maxRetries int
	logger     *zap.Logger
}

var _ conversation.TranscriptSink = (*TranscriptRepository)(nil)

// NewTranscriptRepository 创建归档仓库
func NewTranscriptRepository(pool *PoolManager, maxRetries int, logger *zap.Logger) *TranscriptRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &TranscriptRepository{
		pool:       pool,
		maxRetries: maxRetries,
		logger:     logger.With(zap.String("component", "transcript_repository")),
	}
}

// SaveTranscript 实现 conversation.TranscriptSink
func (r *TranscriptRepository) SaveTranscript(ctx context.Context, snap conversation.Snapshot) error {
	if snap.SessionID == "" {
		return types.NewError(types.ErrInvalidRequest, "transcript has no session id")
	}

	session := sessionRecordFrom(snap)
	var inserted int

	err := r.pool.WithTransactionRetry(ctx, r.maxRetries, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&session).Error; err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		var stored int64
		if err := tx.Model(&TurnRecord{}).Where("session_id = ?", snap.SessionID).Count(&stored).Error; err != nil {
			return fmt.Errorf("count turns: %w", err)
		}
		if int(stored) > len(snap.Turns) {
			return types.Errorf(types.ErrSnapshotCorrupted,
				"archived transcript for %s has %d turns, snapshot has %d", snap.SessionID, stored, len(snap.Turns))
		}

		pending := snap.Turns[stored:]
		if len(pending) == 0 {
			return nil
		}
		rows := make([]TurnRecord, 0, len(pending))
		for _, t := range pending {
			rows = append(rows, turnRecordFrom(snap.SessionID, t))
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("insert turns: %w", err)
		}
		inserted = len(rows)
		return nil
	})
	if err != nil {
		if types.IsErrorCode(err, types.ErrSnapshotCorrupted) {
			return err
		}
		return types.NewError(types.ErrServiceUnavailable, "transcript archive failed").
			WithCause(err).WithRetryable(true)
	}

	r.logger.Debug("transcript archived",
		zap.String("session_id", snap.SessionID),
		zap.Int("inserted", inserted),
		zap.Int("turns", len(snap.Turns)),
	)
	return nil
}

// LoadTranscript 读取一场会话的归档
func (r *TranscriptRepository) LoadTranscript(ctx context.Context, id string) (Transcript, error) {
	db := r.pool.DB().WithContext(ctx)

	var session SessionRecord
	if err := db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Transcript{}, types.Errorf(types.ErrSessionNotFound, "no archived transcript for %s", id)
		}
		return Transcript{}, types.NewError(types.ErrServiceUnavailable, "load transcript failed").WithCause(err)
	}

	var rows []TurnRecord
	if err := db.Where("session_id = ?", id).Order("turn_index ASC").Find(&rows).Error; err != nil {
		return Transcript{}, types.NewError(types.ErrServiceUnavailable, "load turns failed").WithCause(err)
	}

	out := Transcript{Session: session, Turns: make([]conversation.Turn, 0, len(rows))}
	for _, row := range rows {
		out.Turns = append(out.Turns, row.Turn())
	}
	return out, nil
}

// ListSessions 按最近更新时间倒序列出归档会话
func (r *TranscriptRepository) ListSessions(ctx context.Context, limit, offset int) ([]SessionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var sessions []SessionRecord
	err := r.pool.DB().WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "list transcripts failed").WithCause(err)
	}
	return sessions, nil
}

func sessionRecordFrom(snap conversation.Snapshot) SessionRecord {
	turnCount := len(snap.Turns) - 1
	if turnCount < 0 {
		turnCount = 0
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	started := snap.StartedAt
	if started.IsZero() {
		started = updated
	}
	return SessionRecord{
		ID:          snap.SessionID,
		Objective:   snap.Objective,
		Model:       snap.Model,
		Mode:        snap.Mode,
		Started:     snap.Started,
		Active:      snap.Active,
		CloseReason: string(snap.CloseReason),
		TurnCount:   turnCount,
		StartedAt:   started,
		UpdatedAt:   updated,
	}
}

func turnRecordFrom(sessionID string, t conversation.Turn) TurnRecord {
	return TurnRecord{
		SessionID:   sessionID,
		TurnIndex:   t.Index,
		Speaker:     t.Speaker,
		SpeakerName: t.SpeakerName,
		Kind:        string(t.Kind),
		Content:     t.Content,
		SpokenAt:    t.Timestamp,
	}
}
