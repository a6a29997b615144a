package viper

import (
	"path/filepath"
	"strings"

	spfviper "github.com/spf13/viper"
)

// EnvPrefix 为环境变量覆盖的前缀，例如 SIMSAVE_SAVESTORE_ROOT_DIR 对应 savestore.root_dir。
const EnvPrefix = "SIMSAVE"

// Config 封装 spf13/viper 实例，提供 YAML/JSON 加载、默认值与环境变量覆盖。
type Config struct {
	v *spfviper.Viper
}

func New() *Config {
	v := spfviper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Config{v: v}
}

// LoadFile 加载 YAML 或 JSON 配置文件，类型由扩展名推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		// 交给 viper 推断，失败时由 ReadInConfig 返回错误。
	}

	return c.v.ReadInConfig()
}

// SetDefaults 以 prefix 为前缀批量设置默认值。
// 只有设置过默认值的键才能被环境变量覆盖后出现在 UnmarshalKey 的结果中。
func (c *Config) SetDefaults(prefix string, defaults map[string]any) {
	for k, val := range defaults {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		c.v.SetDefault(key, val)
	}
}

func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// Unmarshal 将完整配置反序列化到 dst，dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将 key 对应的子配置反序列化到 dst，key 不存在时保持 dst 不变。
// 子树经由 AllSettings 取得，嵌套键上的环境变量覆盖因此同样生效。
func (c *Config) UnmarshalKey(key string, dst any) error {
	node, ok := lookup(c.v.AllSettings(), key)
	if !ok {
		return nil
	}
	section, ok := node.(map[string]any)
	if !ok {
		return c.v.UnmarshalKey(key, dst)
	}
	sub := spfviper.New()
	if err := sub.MergeConfigMap(section); err != nil {
		return err
	}
	return sub.Unmarshal(dst)
}

func lookup(settings map[string]any, key string) (any, bool) {
	var node any = settings
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = m[part]; !ok {
			return nil, false
		}
	}
	return node, true
}
