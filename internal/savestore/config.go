package savestore

import (
	"strings"

	"github.com/lk2023060901/simsave/internal/storage/compressor"
	"github.com/lk2023060901/simsave/pkg/util/merr"
)

// Config 对应配置文件中的 savestore 段。
type Config struct {
	RootDir         string `mapstructure:"root_dir"`
	Compression     string `mapstructure:"compression"`
	MinCompressSize int    `mapstructure:"min_compress_size"`
	Indent          string `mapstructure:"indent"`
	Workers         int    `mapstructure:"workers"`
	CommitRetries   uint   `mapstructure:"commit_retries"`
	MinFreeBytes    uint64 `mapstructure:"min_free_bytes"`
	// SealKey 为 32 字节 AES 密钥的十六进制表示，与 MacKey 同时配置时加密对象流。
	SealKey string `mapstructure:"seal_key"`
	MacKey  string `mapstructure:"mac_key"`
	// Overwrite 为 false 时，同名存档已存在会返回 ErrSaveAlreadyExists。
	Overwrite bool `mapstructure:"overwrite"`
}

func DefaultConfig() Config {
	return Config{
		RootDir:         "./saves",
		Compression:     compressor.KindNone,
		MinCompressSize: 4096,
		Indent:          "  ",
		Workers:         4,
		CommitRetries:   3,
		Overwrite:       true,
	}
}

// Validate 检查配置并补齐可推导的默认值。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RootDir) == "" {
		return merr.WrapErrParameterMissing("savestore.root_dir")
	}
	switch strings.ToLower(c.Compression) {
	case "":
		c.Compression = compressor.KindNone
	case compressor.KindNone, compressor.KindZstd:
		c.Compression = strings.ToLower(c.Compression)
	default:
		return merr.WrapErrParameterInvalidMsg("savestore.compression must be none or zstd, got %q", c.Compression)
	}
	if c.MinCompressSize < 0 {
		return merr.WrapErrParameterInvalidMsg("savestore.min_compress_size must not be negative, got %d", c.MinCompressSize)
	}
	if strings.Trim(c.Indent, " \t") != "" {
		return merr.WrapErrParameterInvalidMsg("savestore.indent may only contain spaces and tabs, got %q", c.Indent)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.CommitRetries == 0 {
		c.CommitRetries = 1
	}
	return nil
}
