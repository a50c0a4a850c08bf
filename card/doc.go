// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package card 实现会话记忆卡片（session card）模型与重平衡逻辑。

# 概述

一张卡片由三部分组成：scene_digest（长期摘要，逐行 "- " 项目符号）、
fresh（尚未归档的新事实，旧→新）与 callbacks（高优先级钉选事实）。
渲染后的卡片文本必须尽量保持在 CardMax 字节以内。

# 核心函数

  - RenderBlock   — 渲染卡片文本，所有字节上限均以其输出为准
  - Rebalance     — 依次截断 callbacks、把最旧的 fresh 归档进摘要、
    收紧摘要、在压力下弹出 callbacks（不低于 PinsFloor）
  - TightenDigest — 行级去空白、去重、截断，幂等
  - AddBullet     — 向摘要追加一行
  - Compact       — 在 Rebalance 之后按 DigestCap 丢弃最旧摘要行，仅用于容量溢出
  - CompactDomain — 只对文档中当前领域的生效载荷执行 Compact
*/
package card
