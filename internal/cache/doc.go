// 版权所有 2024 DebateHub Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，并在其上实现会话快照存储。

# 概述

本包封装 go-redis 客户端，为上层业务提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭；
SnapshotStore 将辩论会话的完整状态以 JSON 形式写入 Redis，
使进程重启后会话仍可从快照恢复。

# 核心类型

  - Manager：持有 Redis 客户端，提供带前缀的 Get/Set/SetJSON/Delete/Ping；
    Fetch 可用 GETEX 在读取时顺延过期时间。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL、
    快照 TTL、键前缀与健康检查间隔等参数。
  - SnapshotStore：实现 conversation.SnapshotStore，键格式为 <prefix>session:<id>，
    每次加载都把快照的保留期重新计为 SnapshotTTL。

# 错误语义

  - ErrCacheMiss 与 IsCacheMiss 判断缓存未命中。
  - 快照不存在返回 SESSION_NOT_FOUND，内容损坏返回 SNAPSHOT_CORRUPTED，
    Redis 不可用返回 SERVICE_UNAVAILABLE。
*/
package cache
