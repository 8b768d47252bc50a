// Package telemetry 初始化 OpenTelemetry SDK：OTLP gRPC 导出的 TracerProvider
// 与 MeterProvider，以及把会议引擎观测值写成 OTel 指标的 Recorder。
// 关闭时全局 provider 保持 noop，不连接任何外部服务。
package telemetry
