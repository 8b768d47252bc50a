/*
Package conversation 实现多智能体辩论的轮次选择与响应编排引擎。

# 概述

每个会话由一个 Orchestrator 驱动，每轮按固定状态机推进：

	IDLE → BUILD_CONTEXT → CHECK_CLOSE → (CLOSE_AND_SYNTHESIZE | SCORE_CANDIDATES) → SELECT → GENERATE → APPEND → IDLE

数据单向流动：Log → Builder → {Scorer → Selector} → Generator → Log。

# 核心类型

  - Log：只追加的轮次序列，支持 JSON 往返
  - Builder：把日志窗口、组织背景和检索片段投影为有界文本
  - LLMScorer：逐候选人调用模型打分，失败时回退为中低区间随机分
  - KeywordSelector：评分不可用时的确定性关键词回退
  - Selector：排除上一位发言者，取最高分（先到先得）
  - Generator：按人设长度与语言约束生成发言，失败时返回占位文本
  - ConsensusDetector：基于同意用语的收尾启发式
  - Orchestrator：Start / SubmitHumanMessage / AdvanceTurn / Status / Reset / Run
  - Manager 与 SessionStore：按会话 ID 路由，可选快照与转录持久化

# 错误语义

只有 EMPTY_INPUT、SESSION_INACTIVE、SESSION_NOT_STARTED 等调用方错误会从
AdvanceTurn 之外的入口返回；模型与检索失败在组件内部降级，
并通过 Degraded 标记和指标暴露。
*/
package conversation
