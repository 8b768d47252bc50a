// 版权所有 2024 DebateHub Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 把 HTTP、LLM 上游与会议编排的观测值写成 Prometheus 指标。

Collector 同时满足 conversation.Recorder 与 llm.CallObserver，
编排器与弹性 Provider 直接向它上报；HTTP 中间件按归一化路由记录请求。
默认注册到 prometheus.DefaultRegisterer，测试用 WithRegisterer 换成独立 registry。

除计数与直方图外还提供两个拉取式指标：TrackSessions 暴露当前会话数，
WatchDB 挂上 database/sql 连接池统计。
*/
package metrics
