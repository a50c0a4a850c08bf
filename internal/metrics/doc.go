// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的会话引擎指标采集能力，覆盖
会话轮次、存储、缓存与数据库四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。指标通过
promauto.With(reg) 注册到调用方传入的 Registerer（nil 时使用
prometheus.DefaultRegisterer），测试中可使用独立的 Registry。
所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，同时实现 persistence.Observer、
    cache.HitRecorder，并通过 DBStatsReporter 接入 database.PoolManager。

# 主要能力

  - 轮次指标：轮次计数、usage share 与会话块字节数直方图、
    按触发条件分组的刷新决策、重平衡驱逐数、领域补丁写入结果。
  - 存储指标：按 backend/operation/status 分组的操作计数与耗时、
    超限压缩结果、容量拒绝次数。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
