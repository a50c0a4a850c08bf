// =============================================================================
// 📦 sessionctx 配置加载器
// =============================================================================
// 叠加顺序: 默认值 → YAML 文件 → 环境变量
//
// 环境变量名由 env 标签逐级拼接，例如 SESSIONCTX_BUDGET_CTX_MAX。
// 取值按 YAML 标量解析，"90s" 与配置文件里的写法一样表示 time.Duration；
// 字符串切片用逗号分隔。
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "SESSIONCTX"

// Loader 配置加载器
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建使用默认环境变量前缀的加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithConfigPath 设置 YAML 文件路径，文件不存在时只用默认值与环境变量
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加在加载完成后执行的校验
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := decodeFile(l.configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	for _, b := range envBindings(reflect.ValueOf(cfg).Elem(), l.envPrefix) {
		raw, ok := os.LookupEnv(b.key)
		if !ok || raw == "" {
			continue
		}
		if err := b.set(raw); err != nil {
			return nil, fmt.Errorf("failed to load config from env: %s: %w", b.key, err)
		}
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// decodeFile 严格解码：未知键视为拼写错误
func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// envBinding 一个环境变量对应的配置字段
type envBinding struct {
	key   string
	field reflect.Value
}

// envBindings 按 env 标签展开全部叶子字段
func envBindings(v reflect.Value, prefix string) []envBinding {
	var out []envBinding
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			out = append(out, envBindings(field, key)...)
			continue
		}
		if field.CanSet() {
			out = append(out, envBinding{key: key, field: field})
		}
	}
	return out
}

func (b envBinding) set(raw string) error {
	switch b.field.Kind() {
	case reflect.String:
		b.field.SetString(raw)
		return nil
	case reflect.Slice:
		if b.field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", b.field.Type())
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		b.field.Set(reflect.ValueOf(items))
		return nil
	default:
		return yaml.Unmarshal([]byte(raw), b.field.Addr().Interface())
	}
}
