// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 session_memory 表的 Schema 迁移，支持 PostgreSQL、
MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，表结构与 persistence.SQLStore
使用的 SessionRow 一致。生产环境应通过 sessionctl migrate 建表，
而不是依赖 GORM AutoMigrate。

# 核心接口与类型

  - Migrator：sessionctl migrate 使用的操作，Up/Down/Reset/Goto/Force/
    State/Close。
  - SchemaMigrator：Migrator 的实现，封装 golang-migrate 实例。
    SQLite 使用与会话存储相同的纯 Go 驱动，无需 cgo。
  - Dialect：方言，决定内嵌目录与 golang-migrate 数据库驱动。
  - Config：方言、连接 URL、迁移表名、锁超时与日志。
  - State / Step：当前版本与每个内嵌迁移是否已应用。

# 工厂函数

FromDatabaseConfig / FromURL 分别从配置文件的 database 段与
--db-type、--db-url 创建迁移器。
*/
package migration
