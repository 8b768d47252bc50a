// Package fixtures 提供辩论测试的样例数据。
package fixtures

import (
	"fmt"
	"strings"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/llm"
	"github.com/BaSui01/debatehub/types"
)

// ScoreReply 返回评分请求期望的 JSON 回复
func ScoreReply(score float64, reasoning string) string {
	return fmt.Sprintf(`{"score": %g, "reasoning": %q}`, score, reasoning)
}

// IsScoringRequest 判断请求是否为 JSON 模式的评分请求
func IsScoringRequest(req *llm.ChatRequest) bool {
	return req.ResponseFormat == llm.ResponseFormatJSONObject
}

// SystemPrompt 返回请求中的系统提示词
func SystemPrompt(req *llm.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			return m.Content
		}
	}
	return ""
}

// LastUserContent 返回最后一条用户消息
func LastUserContent(req *llm.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

// ScoredPersona 从评分请求的系统提示词中找出被评分的人设
func ScoredPersona(req *llm.ChatRequest, registry *persona.Registry) (persona.Persona, bool) {
	system := SystemPrompt(req)
	for _, p := range registry.All() {
		if strings.Contains(system, p.Name+" ("+p.Role+")") {
			return p, true
		}
	}
	return persona.Persona{}, false
}

// SmallPanel 返回一个三人面板：主持人、策略顾问、技术负责人
func SmallPanel() *persona.Registry {
	all := persona.Defaults()
	keep := make([]persona.Persona, 0, 3)
	for _, p := range all {
		switch p.ID {
		case persona.FacilitatorID, persona.StrategistID, persona.TechID:
			keep = append(keep, p)
		}
	}
	reg, err := persona.NewRegistry(keep...)
	if err != nil {
		panic(err)
	}
	return reg
}
