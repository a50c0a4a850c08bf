// =============================================================================
// sessionctl 主入口
// =============================================================================
// 会话记忆运维工具：查看、渲染、重平衡会话卡片，估算提示词预算，管理数据库迁移
//
// 使用方法:
//
//	sessionctl show financial_42                  # 打印完整会话文档
//	sessionctl render financial_42                # 打印注入提示词的会话块
//	sessionctl rebalance financial_42 therapy_7   # 强制重平衡活跃卡片
//	sessionctl usage financial_42 --user "..."    # 估算预算占用与刷新决策
//	sessionctl complete therapy_7 --reply "..."   # 把模型回复写入会话卡片
//	sessionctl migrate up                         # 运行数据库迁移
//	sessionctl version                            # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
