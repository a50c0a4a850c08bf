// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 session 负责单个会话轮次的编排：组装提示词、推进统计、
判断是否刷新记忆卡片，以及在模型回复后写入领域补丁。

# 核心类型

  - Engine: PrepareTurn / CompleteTurn / RunTurn / Rebalance。
  - Locker: 基于 semaphore 的按会话 ID 串行化，支持 context 取消。
  - Recorder: 轮次指标回调，由 internal/metrics.Collector 实现。

# 轮次流程

PrepareTurn 读取会话文档并渲染会话块，计算 usage share，再用
refresh.Policy 推进 stats 并判断触发条件。刷新时对当前领域卡片执行
card.Rebalance，并与 MarkRefreshed 之后的 stats 一起保存；否则只保存
stats 与身份键（usercharId / canonicalId）。

CompleteTurn 清洗回复并调用 updaters 对应领域的 Writer。写入超出
容量上限时不返回错误，而是对当前卡片执行 card.Compact 后保存，
并在结果中设置 RefreshRequired；未落库的补丁放在 DroppedPatch 中。

Rebalance 供运维手动刷新，执行 card.RebalanceWithResult，摘要行全部保留。

RunTurn 在 Locker 保护下依次执行 PrepareTurn、生成回复与 CompleteTurn。
Locker 只在进程内生效，跨进程写入同一会话仍需调用方自行协调。

# 会话 ID

  - NormalizeSessionID: "bw:<agentKey>:<sid>" → "<sid>"
  - DomainOf: 按前缀 financial_ / finance_ / therapy_ 判断领域
  - DetectDomain: 按请求提示字段判断领域
  - NewSessionID: <domain>_<uuid>
*/
package session
