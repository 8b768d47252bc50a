// Package providers 提供各 LLM Provider 共享的配置结构与上游错误映射。
// 具体实现位于子包（如 providers/openai）。
package providers
