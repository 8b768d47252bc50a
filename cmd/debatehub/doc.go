// Copyright (c) DebateHub Authors.
// Licensed under the MIT License.

/*
Package main 提供 DebateHub 服务端程序入口。

# 概述

cmd/debatehub 装配会议引擎（人设表、LLM 上游、检索、Redis 快照与事件、
SQL 归档），并以 HTTP/WebSocket 服务或终端会议的形式运行。配置来自
YAML 文件与 DEBATEHUB_ 前缀的环境变量。

# 核心类型

  - app        — 引擎及其外部依赖，serve 与 run 共用
  - Server     — HTTP 服务器，管理路由、中间件链与优雅关闭
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、run（终端会议，--interactive 从 stdin 插话）、
    migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    Metrics、RequestLogger、CORS、JWTAuth 或 APIKeyAuth、RateLimiter
  - 人设热加载：personas.watch 开启后文件变更只影响新会话
  - 优雅关闭：取消后台运行 → 停止监听 → 关闭 HTTP → 关闭总线、Redis、
    数据库 → 刷新追踪
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
