// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，支持健康检查、
统计信息采集与事务重试。

# 概述

本包通过 PoolManager 封装 GORM 与 database/sql 的连接池配置，
统一管理连接生命周期、空闲回收与最大连接数限制。后台健康检查
定时探活，异常时通过 zap 日志输出诊断信息。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Closed()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。
  - TxFunc：事务内执行的读-合并-写回调。
  - Config / Open / Dialector：按驱动名（postgres、mysql、sqlite）打开
    GORM 连接并包装为 PoolManager，sqlite 使用纯 Go 的 glebarez/sqlite。
  - StatsReporter：健康检查时上报连接数，供 metrics 采集。

# 主要能力

  - 连接池调优：通过 MaxIdleConns/MaxOpenConns/ConnMaxLifetime 精细控制。
  - 健康检查：后台定时 PingContext 探活，输出连接数与空闲数。
  - 事务重试：WithTransactionRetry 按 attempts 预算执行事务，
    IsRetryableError 命中的驱动错误以封顶的指数退避重做，
    persistence.SQLStore 的读-合并-写即运行于其中。
*/
package database
