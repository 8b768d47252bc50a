// 版权所有 2024 DebateHub Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责辩论记录的 SQL 归档。

# 概述

Open 按驱动名（postgres、mysql、sqlite）选择 GORM 方言并建立连接池，
sqlite 使用纯 Go 驱动。PoolManager 管理连接上限与后台探活，
TranscriptRepository 实现 conversation.TranscriptSink，把会话与发言
写入 debate_sessions / debate_turns 两张表，表结构由 internal/migration 维护。

# 事务重试

WithTransactionRetry 只对驱动报告的瞬时错误整体重试：PostgreSQL 的
40001、40P01、55P03，MySQL 的 1205、1213，断连以及 sqlite 的锁忙。
唯一约束冲突等永久错误直接返回。

# 归档语义

每次保存只插入库中尚未存在的发言，重复保存幂等；库中发言多于快照时
视为快照损坏。LoadTranscript 按发言顺序读回，ListSessions 按更新时间分页。
*/
package database
