// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 updaters 从模型回复中提取领域补丁，并写入会话存储。

# 概述

每个领域有一个 Writer：先用 Sanitize 清洗模型回复，再用 Extract
通过关键词表与正则得到一个小补丁，最后与存储中当前的领域载荷合并后
以 {<domain>: payload} 的形式调用 Store.SavePatch。

没有提取到任何字段时不写入，返回 (false, nil)。存储错误（包括
*persistence.CapacityExceededError）原样向上传播。

# 领域

  - financial: goals（关键词表）、last_plan_id（plan_<id> 标记）、
    risk（low|medium|high risk）、callbacks、fresh
  - therapy: intent（首个命中的意图）、themes（全部命中的意图）、
    callbacks、fresh

列表字段（fresh、callbacks、goals、themes）追加到已有列表并去重，
数量上限交给 card.Rebalance 在刷新时处理。

# 使用方式

	ok, err := updaters.WriteFinancialPatch(ctx, store, sid, reply,
	    updaters.WithCharacterID(charID))
*/
package updaters
