// Package mocks 提供可编程的 llm.Provider 测试替身。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/debatehub/llm"
	"github.com/BaSui01/debatehub/types"
)

// ReplyFunc 按请求决定回复文本
type ReplyFunc func(req *llm.ChatRequest) (string, error)

// Call 一次 Completion 的请求与结果
type Call struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Err      error
}

// MockProvider 默认回复固定文本；设置 ReplyFunc 后按请求路由，
// 常用来区分评分请求（JSON 模式）与发言生成请求。
type MockProvider struct {
	mu    sync.Mutex
	reply ReplyFunc
	calls []Call
}

var _ llm.Provider = (*MockProvider)(nil)

// NewMockProvider 回复 "ok"
func NewMockProvider() *MockProvider {
	return NewSuccessProvider("ok")
}

// NewSuccessProvider 总是回复 text
func NewSuccessProvider(text string) *MockProvider {
	return &MockProvider{reply: func(*llm.ChatRequest) (string, error) { return text, nil }}
}

// NewErrorProvider 总是返回 err
func NewErrorProvider(err error) *MockProvider {
	return &MockProvider{reply: func(*llm.ChatRequest) (string, error) { return "", err }}
}

// WithReplyFunc 替换回复逻辑
func (m *MockProvider) WithReplyFunc(fn ReplyFunc) *MockProvider {
	m.mu.Lock()
	m.reply = fn
	m.mu.Unlock()
	return m
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	reply := m.reply
	m.mu.Unlock()

	call := Call{Request: req}
	if err := ctx.Err(); err != nil {
		call.Err = err
	} else if text, err := reply(req); err != nil {
		call.Err = err
	} else {
		call.Response = &llm.ChatResponse{
			Provider:  "mock",
			Model:     req.Model,
			Choices:   []llm.ChatChoice{{FinishReason: "stop", Message: types.NewAssistantMessage(text)}},
			Usage:     llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
			CreatedAt: time.Now(),
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	return call.Response, call.Err
}

// GetLastCall 没有调用时返回 nil
func (m *MockProvider) GetLastCall() *Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}
