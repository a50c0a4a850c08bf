// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 sessionctl 命令行工具。

# 概述

sessionctl 按 config 包加载配置（YAML + SESSIONCTX_* 环境变量），
据此打开会话存储（memory/file/redis/sql/mongo），并在其上执行运维命令。
日志使用 zap，指标写入独立的 Prometheus 注册表，可通过 --metrics-out
以 textfile 格式落盘；启用遥测时 span 经 OTLP 导出。

# 子命令

  - show / render：读取会话文档或渲染会话块
  - rebalance：对一个或多个会话强制执行卡片压缩（并发，受 --parallel 限制）
  - usage：只读地组装提示词，输出预算、占用与刷新决策
  - complete：运行领域补丁写入器，容量超限时自动重平衡
  - migrate：up/down/status/version/goto/force/reset
  - version：构建信息
*/
package main
