// Package config 提供 DebateHub 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（DEBATEHUB_ 前缀）的顺序叠加，
// 加载完成后统一校验。各段直接复用组件自身的配置结构，
// 例如 server.Config、conversation.Config、database.Config。
//
// FileWatcher 定期比较人设文件的内容摘要，内容真正变化时回调，
// 服务端据此为之后创建的会话换用新的人设注册表。
package config
