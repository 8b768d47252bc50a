// Package api 定义 DebateHub HTTP API 的请求与响应结构。
//
// # API 概览
//
// DebateHub 通过 REST + WebSocket 暴露多智能体会议：
//   - 会话：创建、提交人类发言、推进一轮、后台自动运行、停止与重置
//   - 实时推送：/api/v1/sessions/{id}/stream 转发 turn / end 事件
//   - 人设列表、文档入库（用于检索增强）、归档记录查询
//   - 健康检查与 Prometheus 指标
//
// # 认证
//
// 配置了 API Key 时需携带 X-API-Key 请求头；配置了 JWT 时携带
// Authorization: Bearer <token>。健康检查与版本端点无需认证。
//
// # 生成文档
//
// Handler 上的 swag 注解可用于生成 OpenAPI 文档：
//
//	swag init -g cmd/debatehub/main.go -o api --parseDependency --parseInternal
package api
