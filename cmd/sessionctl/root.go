package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/sessionctx/assembler"
	"github.com/BaSui01/sessionctx/config"
	"github.com/BaSui01/sessionctx/internal/cache"
	"github.com/BaSui01/sessionctx/internal/metrics"
	"github.com/BaSui01/sessionctx/internal/telemetry"
	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/session"
	"github.com/BaSui01/sessionctx/tokenizer"
)

// GlobalFlags 全局命令行参数
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
	MetricsOut string
}

var globalFlags GlobalFlags

// NewRootCmd 创建 sessionctl 根命令
func NewRootCmd() *cobra.Command {
	globalFlags = GlobalFlags{}

	rootCmd := &cobra.Command{
		Use:   "sessionctl",
		Short: "Inspect and maintain bounded session memory",
		Long: `sessionctl operates on the per-session memory documents that feed the
session block of every prompt: it prints and renders them, force-compacts
cards, estimates prompt budget usage and manages the SQL schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch globalFlags.Output {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want text or json)", globalFlags.Output)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&globalFlags.MetricsOut, "metrics-out", "", "write Prometheus metrics to this textfile on exit")

	rootCmd.AddCommand(NewShowCmd())
	rootCmd.AddCommand(NewRenderCmd())
	rootCmd.AddCommand(NewRebalanceCmd())
	rootCmd.AddCommand(NewUsageCmd())
	rootCmd.AddCommand(NewCompleteCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// =============================================================================
// 🔧 配置与日志
// =============================================================================

func loadConfig() (*config.Config, error) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if globalFlags.ConfigFile != "" {
		loader = loader.WithConfigPath(globalFlags.ConfigFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg config.LogConfig, verbose bool) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// stdout 留给命令输出
	outputs := make([]string, 0, len(cfg.OutputPaths))
	for _, p := range cfg.OutputPaths {
		if p == "stdout" {
			p = "stderr"
		}
		outputs = append(outputs, p)
	}
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// =============================================================================
// 🧩 运行时装配
// =============================================================================

// app 会话类命令所需的全部依赖，由同一份 Config 构建
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	providers *telemetry.Providers
	cache     *cache.Manager
	store     persistence.Store
	engine    *session.Engine
	asm       *assembler.Assembler
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	rt := &app{cfg: cfg, logger: logger}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	rt.providers = providers

	var storeOpts []persistence.Option
	storeOpts = append(storeOpts, persistence.WithLogger(logger))

	var recorder session.Recorder
	if cfg.Metrics.Enabled {
		rt.registry = prometheus.NewRegistry()
		rt.collector = metrics.NewCollector(cfg.Metrics.Namespace, rt.registry, logger)
		recorder = rt.collector
		storeOpts = append(storeOpts,
			persistence.WithObserver(rt.collector),
			persistence.WithPoolStatsReporter(rt.collector.DBStatsReporter(cfg.Database.Driver)),
		)
	}

	if cfg.Cache.Enabled {
		m, err := cache.NewManager(cfg.CacheConfig(), logger)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to open document cache: %w", err)
		}
		if rt.collector != nil {
			m.SetRecorder(rt.collector)
		}
		rt.cache = m
		storeOpts = append(storeOpts, persistence.WithCache(m, cfg.Cache.TTL))
	}

	store, err := persistence.NewStore(ctx, cfg.StoreConfig(), storeOpts...)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	rt.store = store

	if cfg.Budget.TokenizerModel != "" {
		tokenizer.RegisterOpenAICounters(logger)
	}
	asmOpts := []assembler.Option{
		assembler.WithBudget(cfg.Budget.CtxMax, cfg.Budget.ReserveOutput),
		assembler.WithCounter(tokenizer.ForModel(cfg.Budget.TokenizerModel)),
	}
	rt.asm = assembler.New(store, append(asmOpts, assembler.WithLogger(logger))...)

	engineOpts := []session.Option{
		session.WithPolicy(cfg.Budget.Policy()),
		session.WithAssemblerOptions(asmOpts...),
		session.WithLogger(logger),
	}
	if recorder != nil {
		engineOpts = append(engineOpts, session.WithRecorder(recorder))
	}
	rt.engine = session.NewEngine(store, engineOpts...)

	return rt, nil
}

// Close 释放存储、缓存与遥测 provider，需要时写出指标文本文件
func (rt *app) Close(ctx context.Context) error {
	var errs []error
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil && !errors.Is(err, cache.ErrManagerClosed) {
			errs = append(errs, err)
		}
	}
	if rt.registry != nil && globalFlags.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(globalFlags.MetricsOut, rt.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := rt.providers.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withRuntime 加载配置并构建 app，fn 返回后释放
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log, globalFlags.Verbose)
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, rt)
	closeErr := rt.Close(ctx)
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// =============================================================================
// 🖨️ 输出
// =============================================================================

// printResult json 模式下输出缩进 JSON，否则调用 text
func printResult(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if globalFlags.Output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
