// Package embedding 提供统一的嵌入提供者接口，以及基于 openai-go 的
// OpenAI 兼容实现，供 rag 包做查询与文档向量化。
package embedding
