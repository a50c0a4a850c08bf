// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供会话记忆文档的键值存储抽象及多后端实现。

# 概述

每个会话 ID 对应一个 JSON 文档（领域载荷、stats、身份键等）。
SavePatch 以"读取-合并-写入"的方式提交增量补丁，并在提交前
对整个文档的紧凑 JSON 序列化做 16384 字节上限检查。

# 核心接口

  - Store: Load / SavePatch / Ping / Close。Load 对不存在的会话返回 nil, nil。
  - MergePolicy: MergeDomain（默认，顶层键均为对象时做一层深合并）
    与 MergeShallow（顶层键整体替换）。
  - Compactor: 超限时的压缩回调，默认 DefaultCompactor 对每个领域卡片
    执行 card.CompactDomain（只压缩当前领域载荷）；压缩后仍超限则返回 *CapacityExceededError，
    且不写入任何数据。
  - Observer: 操作耗时与压缩结果回调，由 metrics.Collector 实现。

# 后端实现

  - Memory: 内存实现，适合开发与测试。
  - File: 原子写入 JSON 索引，适合单节点部署。
  - Redis: 每会话一个键，WATCH/MULTI 乐观锁重试，可选 TTL。
  - SQL: GORM + session_memory 表，事务内行锁合并，死锁/忙错误自动重试。
  - Mongo: 基于 version 字段的条件替换实现乐观并发。
  - CachedStore: 以 Redis 作为读穿透缓存包装任意后端。

# 使用方式

	store, err := persistence.NewStore(ctx, cfg,
	    persistence.WithLogger(logger),
	    persistence.WithObserver(collector),
	)
	err = store.SavePatch(ctx, sid, types.Patch{"financial": payload},
	    persistence.WithCharacterID(charID))

NewStore 返回的存储会为每次操作创建 OpenTelemetry span。
*/
package persistence
