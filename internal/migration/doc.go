// 版权所有 2024 DebateHub Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 提供数据库 Schema 迁移管理能力，支持 PostgreSQL、
MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各数据库方言的 SQL 迁移文件（debate_sessions 与
debate_turns 两张归档表），结合 golang-migrate 引擎实现版本化的 Schema
变更管理。SQLite 通过纯 Go 的 "sqlite" database/sql 驱动打开。支持正向迁移、
回滚、按步执行、跳转到指定版本以及强制设置版本号等操作。

# 核心接口与类型

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、Status 等
    操作，封装 golang-migrate 实例；方言差异集中在一张 dialect 表里。
  - Catalog / SchemaVersion：从内嵌文件系统列出某方言的迁移版本。
  - CLI：终端输出层，每次变更后打印当前 Schema 版本。

# 主要能力

  - NewMigratorFromDSN 复用应用的驱动名与 DSN，MigrationURL 补齐
    MySQL multiStatements 与 SQLite file: URI。
  - EnsureSchema 供 database.auto_migrate 在启动时把归档表迁到最新；
    dirty 状态直接报错，需要先 migrate force。
  - ctx 取消时通知 golang-migrate 在当前迁移文件完成后停止。
*/
package migration
