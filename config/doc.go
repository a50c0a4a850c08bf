// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package config 提供 sessionctx 的配置管理功能。

配置按 默认值 → YAML 文件 → 环境变量（前缀 SESSIONCTX）的顺序叠加，
并可转换为存储、缓存与刷新策略各自的配置结构：

	cfg, err := config.NewLoader().WithConfigPath("sessionctx.yaml").Load()
	store, err := persistence.NewStore(ctx, cfg.StoreConfig())
	policy := cfg.Budget.Policy()
*/
package config
