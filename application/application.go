package application

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/lk2023060901/simsave/internal/savestore"
	zlog "github.com/lk2023060901/simsave/pkg/log"
	"github.com/lk2023060901/simsave/pkg/objgraph"
	zviper "github.com/lk2023060901/simsave/pkg/util/viper"
)

const (
	defaultConfigPath = "./config.yaml"
	configPathEnv     = "SIMSAVE_CONFIG_FILE_PATH"
)

// Application 是 simsave 进程的运行时容器，持有配置、模块 Logger 与存档仓库。
type Application struct {
	args    []string
	cfg     *zviper.Config
	loggers map[string]*zlog.MLogger
	stores  []*savestore.Store
}

// New 创建 Application，args 为空时使用 os.Args[1:]。
func New(args ...string) *Application {
	if len(args) == 0 {
		args = os.Args[1:]
	}
	return &Application{args: args}
}

// Run 加载配置并初始化日志。配置文件路径优先级从低到高：
//  1. 默认 ./config.yaml（不存在时只使用默认值）
//  2. 环境变量 SIMSAVE_CONFIG_FILE_PATH
//  3. 命令行 --config <path>
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	return a.initLogging()
}

func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger 返回配置中的模块 Logger，名称未知时退回全局 Logger。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

// StoreConfig 返回 savestore 段配置，未配置的键取默认值。
func (a *Application) StoreConfig() (savestore.Config, error) {
	sc := savestore.DefaultConfig()
	if a.cfg == nil {
		return sc, nil
	}
	if err := a.cfg.UnmarshalKey("savestore", &sc); err != nil {
		return sc, fmt.Errorf("parse savestore config: %w", err)
	}
	return sc, nil
}

// OpenStore 按配置创建存档仓库，Close 时一并关闭。
func (a *Application) OpenStore(reg *objgraph.Registry, opts ...savestore.Option) (*savestore.Store, error) {
	sc, err := a.StoreConfig()
	if err != nil {
		return nil, err
	}
	store, err := savestore.New(sc, reg, opts...)
	if err != nil {
		return nil, err
	}
	store.SetLogger(a.Logger("savestore"))
	a.stores = append(a.stores, store)
	return store, nil
}

// Close 关闭打开过的存档仓库并刷新日志。
func (a *Application) Close() {
	for _, s := range a.stores {
		s.Close()
	}
	a.stores = nil
	_ = zlog.Sync()
}

func (a *Application) loadConfig() (*zviper.Config, error) {
	fs := pflag.NewFlagSet("simsave", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	configFlag := fs.String("config", "", "path of the yaml/json config file")
	if err := fs.Parse(a.args); err != nil && err != pflag.ErrHelp {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}

	configPath, explicit := defaultConfigPath, false
	if envPath := os.Getenv(configPathEnv); envPath != "" {
		configPath, explicit = envPath, true
	}
	if *configFlag != "" {
		configPath, explicit = *configFlag, true
	}

	cfg := zviper.New()
	cfg.SetDefaults("savestore", storeDefaults())
	if _, err := os.Stat(configPath); err != nil && !explicit {
		return cfg, nil
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	return cfg, nil
}

func storeDefaults() map[string]any {
	d := savestore.DefaultConfig()
	return map[string]any{
		"root_dir":          d.RootDir,
		"compression":       d.Compression,
		"min_compress_size": d.MinCompressSize,
		"indent":            d.Indent,
		"workers":           d.Workers,
		"commit_retries":    d.CommitRetries,
		"min_free_bytes":    d.MinFreeBytes,
		"overwrite":         d.Overwrite,
		"seal_key":          d.SealKey,
		"mac_key":           d.MacKey,
	}
}

func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv 根据 SIMSAVE_LOG_* 环境变量配置全局 Logger：
//   - SIMSAVE_LOG_ENABLE: "1"/"true" 开启输出，否则丢弃全部日志。
//   - SIMSAVE_LOG_LEVEL: 日志级别，默认 info。
//   - SIMSAVE_LOG_STDOUT: 是否输出到标准输出。
//   - SIMSAVE_LOG_FILE_DIR / SIMSAVE_LOG_FILE: 日志目录与文件名。
//   - SIMSAVE_LOG_FORMAT: text、json 或 console，默认 text。
func (a *Application) initGlobalLoggerFromEnv() error {
	cfg := &zlog.Config{
		Level:  getenvDefault("SIMSAVE_LOG_LEVEL", "info"),
		Format: getenvDefault("SIMSAVE_LOG_FORMAT", zlog.FormatText),
		Stdout: getenvBool("SIMSAVE_LOG_STDOUT", false),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("SIMSAVE_LOG_FILE_DIR", ""),
			Filename: getenvDefault("SIMSAVE_LOG_FILE", ""),
		},
	}
	if !getenvBool("SIMSAVE_LOG_ENABLE", false) {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig 按 logging 段创建命名 Logger，例如：
//
//	logging:
//	  savestore:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: savestore.log
func (a *Application) initModuleLoggersFromConfig() error {
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
