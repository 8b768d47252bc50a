// =============================================================================
// 📦 DebateHub 配置加载
// =============================================================================
// 默认值 → YAML 文件 → 环境变量 → Validate → 自定义校验
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("DEBATEHUB").
//	    Load()
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "DEBATEHUB"

// Loader Builder 风格的配置加载器。Load 之后 Sources 记录实际生效的来源。
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error

	fileUsed bool
	envKeys  []string
}

func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.TrimSuffix(prefix, "_")
	return l
}

// WithValidator 在内置 Validate 通过后执行
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Sources 上次 Load 是否读到了文件，以及应用了哪些环境变量（已排序）
func (l *Loader) Sources() (file string, envKeys []string) {
	if l.fileUsed {
		file = l.configPath
	}
	return file, slices.Clone(l.envKeys)
}

func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.fileUsed, l.envKeys = false, nil

	if l.configPath != "" {
		used, err := readYAML(l.configPath, cfg)
		if err != nil {
			return nil, err
		}
		l.fileUsed = used
	}

	overlay := envOverlay{lookup: os.LookupEnv}
	overlay.walk(reflect.ValueOf(cfg).Elem(), l.envPrefix)
	if err := errors.Join(overlay.errs...); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	slices.Sort(overlay.applied)
	l.envKeys = overlay.applied

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config rejected: %w", err)
		}
	}
	return cfg, nil
}

// readYAML 文件不存在时保留默认值，返回 false
func readYAML(path string, cfg *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return false, fmt.Errorf("parse config %s: %w", path, err)
	}
	return true, nil
}

// =============================================================================
// 🌱 环境变量覆盖
// =============================================================================

var durationType = reflect.TypeOf(time.Duration(0))

// envOverlay 按 env 标签把 PREFIX_SECTION_FIELD 写进结构体。
// 空值视为未设置；解析失败的键全部收集后一起报告。
type envOverlay struct {
	lookup  func(string) (string, bool)
	applied []string
	errs    []error
}

func (o *envOverlay) walk(v reflect.Value, prefix string) {
	t := v.Type()
	for i := range t.NumField() {
		sf, field := t.Field(i), v.Field(i)
		if !sf.IsExported() {
			continue
		}
		// 内嵌结构体不增加一层前缀
		if sf.Anonymous && field.Kind() == reflect.Struct {
			o.walk(field, prefix)
			continue
		}
		tag := sf.Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		if field.Kind() == reflect.Struct {
			o.walk(field, key)
			continue
		}
		raw, ok := o.lookup(key)
		if !ok || raw == "" {
			continue
		}
		if err := assign(field, raw); err != nil {
			o.errs = append(o.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
			continue
		}
		o.applied = append(o.applied, key)
	}
}

func assign(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		// 逗号分隔，丢弃空项
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
