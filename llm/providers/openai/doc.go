// Package openai 基于 github.com/openai/openai-go 实现 llm.Provider，
// 可对接 OpenAI 及任意 OpenAI 兼容端点。
package openai
