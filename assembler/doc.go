/*
Package assembler 把会话记忆卡片渲染成注入提示词的文本块，并计算其占用的上下文预算。

算出的占用比例是刷新判定中压力触发器的唯一输入。
对话历史不计入占用，历史截断由上游负责。

	a := assembler.New(store, assembler.WithBudget(4096, 384))
	out, err := a.AssembleFinancialPrompt(ctx, assembler.AssembleInput{
		SessionID:  sid,
		SystemText: system,
		UserText:   userMsg,
	})
*/
package assembler
