/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求/响应模型，
以及带限流、重试、熔断与调用观测的弹性包装器。

# Provider 抽象

核心接口是 [Provider]，包含补全、健康检查与名称。辩论引擎只依赖该接口，
底层可以是任意 OpenAI 兼容服务（见 llm/providers/openai）。

# 弹性能力

[ResilientProvider] 按以下顺序包装每次调用：

  - 熔断（llm/circuitbreaker）：连续失败达到阈值后短路，Available 作为
    评分器的能力检查
  - 重试（llm/retry）：指数退避，仅重试可重试错误
  - 限流（golang.org/x/time/rate）：每次尝试前等待令牌
  - 超时：请求级 Timeout 优先，否则使用 CallTimeout

# 结构化输出

[ChatRequest].ResponseFormat 为 [ResponseFormatJSONObject] 时要求模型返回
单个 JSON 对象，用于相关度评分。
*/
package llm
