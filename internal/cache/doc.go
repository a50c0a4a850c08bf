// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，用作会话文档的读穿透缓存。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括初始化、
健康检查与优雅关闭；persistence.CachedStore 通过它缓存 SQL / Mongo
后端读取到的会话文档，并在写入后失效对应键。

# 核心类型

  - Manager：以 JSON 缓存会话文档，提供 Fetch/Put/Invalidate/Ping/Close。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL 与健康检查间隔。
  - HitRecorder：命中/未命中记录接口，由 metrics.Collector 实现。

# 主要能力

  - 键命名：Key("session", sid) 生成带统一前缀的缓存键，
    第一段同时作为命中率指标的 cache_type 标签。
  - 健康检查：后台定时 Ping 检测，Close 后立即退出。
  - 错误语义：ErrCacheMiss / IsCacheMiss 与 ErrManagerClosed。
*/
package cache
