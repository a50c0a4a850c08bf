// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package types 提供 sessionctx 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 card、persistence、
assembler、updaters、session 等上层模块提供统一的类型契约。

# 核心类型

  - Domain            — 会话领域（financial / therapy / generic）
  - Document / Patch  — 持久化的会话 JSON 文档与增量补丁
  - SessionStats      — 每轮更新的会话统计（turn_idx、high_pressure_streak 等）
  - Error / ErrorCode — 结构化错误体系，含 SessionID、Retryable 标记

# 主要能力

  - 错误工具链：WrapError / IsErrorCode / GetErrorCode / IsRetryable
  - 文档访问：Document.Object / Document.Decode / Document.Clone / StatsFrom
*/
package types
