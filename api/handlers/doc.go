// Copyright (c) DebateHub Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 DebateHub HTTP API 的请求处理器实现。

# 概述

handlers 包实现会议相关端点的请求处理逻辑，所有 Handler 均遵循标准
net/http 接口，路由使用 Go 1.22 的方法 + 路径模式注册。

# 核心类型

  - SessionHandler   — 会话生命周期：创建、发言、推进、后台运行、停止、重置
  - StreamHandler    — WebSocket 实时推送会话事件
  - PersonaHandler   — 人设列表（不暴露提示词）
  - DocumentHandler  — 文档切块入库
  - ArchiveHandler   — SQL 归档的只读查询
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter   — 捕获状态码，透传 Flush / Hijack

# 错误映射

WriteError 接受任意 error：*types.Error 按错误码映射 HTTP 状态码，
其余错误统一返回 INTERNAL_ERROR，不暴露内部细节。
*/
package handlers
