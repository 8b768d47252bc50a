package api

import (
	"time"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/agent/persona"
)

// =============================================================================
// 🗣️ 会话请求/响应
// =============================================================================

// StartSessionRequest POST /api/v1/sessions
type StartSessionRequest struct {
	Objective string                  `json:"objective"`
	Org       conversation.OrgContext `json:"org,omitempty"`
	Model     string                  `json:"model,omitempty"`
}

// StartRequest 转换为编排器的开场请求
func (r StartSessionRequest) StartRequest() conversation.StartRequest {
	return conversation.StartRequest{
		Objective: r.Objective,
		Org:       r.Org,
		Model:     r.Model,
	}
}

// SubmitMessageRequest POST /api/v1/sessions/{id}/messages
type SubmitMessageRequest struct {
	Text string `json:"text"`
}

// SubmitMessageResponse 人类发言已追加
type SubmitMessageResponse struct {
	Turn   conversation.Turn   `json:"turn"`
	Status conversation.Status `json:"status"`
}

// AdvanceResponse POST /api/v1/sessions/{id}/turns
type AdvanceResponse struct {
	Round  conversation.RoundResult `json:"round"`
	Status conversation.Status      `json:"status"`
}

// RunRequest POST /api/v1/sessions/{id}/run
type RunRequest struct {
	// MaxRounds 本次自动运行的轮数上限，<=0 表示直到会话结束
	MaxRounds int `json:"max_rounds,omitempty"`
}

// RunAcceptedResponse 自动运行已在后台启动
type RunAcceptedResponse struct {
	SessionID string `json:"session_id"`
	Running   bool   `json:"running"`
	// Stream 订阅实时发言的 WebSocket 路径
	Stream string `json:"stream"`
}

// TranscriptResponse GET /api/v1/sessions/{id}/transcript
type TranscriptResponse struct {
	SessionID string               `json:"session_id"`
	Turns     []conversation.Turn  `json:"turns"`
	Summary   conversation.Summary `json:"summary"`
}

// SessionListResponse GET /api/v1/sessions
type SessionListResponse struct {
	Sessions []conversation.Status `json:"sessions"`
	Total    int                   `json:"total"`
}

// =============================================================================
// 👥 人设
// =============================================================================

// PersonaInfo 对外公开的人设信息（不含提示词）
type PersonaInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Description string   `json:"description,omitempty"`
	Expertise   []string `json:"expertise"`
	Language    string   `json:"language"`
	Facilitator bool     `json:"facilitator,omitempty"`
}

// NewPersonaInfo 从人设构造公开信息
func NewPersonaInfo(p persona.Persona) PersonaInfo {
	return PersonaInfo{
		ID:          p.ID,
		Name:        p.Name,
		Role:        p.Role,
		Description: p.Description,
		Expertise:   p.Expertise,
		Language:    p.Language,
		Facilitator: p.Facilitator,
	}
}

// PersonaListResponse GET /api/v1/personas
type PersonaListResponse struct {
	Personas []PersonaInfo `json:"personas"`
}

// =============================================================================
// 📄 文档与归档
// =============================================================================

// IngestDocumentRequest POST /api/v1/documents
type IngestDocumentRequest struct {
	ID       string         `json:"id,omitempty"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ArchivedSession 归档会话摘要
type ArchivedSession struct {
	ID          string    `json:"id"`
	Objective   string    `json:"objective"`
	Mode        string    `json:"mode"`
	Active      bool      `json:"active"`
	CloseReason string    `json:"close_reason,omitempty"`
	TurnCount   int       `json:"turn_count"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ArchiveListResponse GET /api/v1/transcripts
type ArchiveListResponse struct {
	Sessions []ArchivedSession `json:"sessions"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ArchivedTranscriptResponse GET /api/v1/transcripts/{id}
type ArchivedTranscriptResponse struct {
	Session ArchivedSession     `json:"session"`
	Turns   []conversation.Turn `json:"turns"`
}
