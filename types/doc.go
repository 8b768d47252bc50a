/*
Package types 提供 debatehub 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、rag、api
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / Role    — 发送给补全服务的对话消息
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记，
    支持 errors.Is 按错误码匹配

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithUserID / WithSessionID
  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsRetryable / DefaultHTTPStatus
*/
package types
