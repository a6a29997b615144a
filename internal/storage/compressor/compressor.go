package compressor

import (
	"strings"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

const (
	KindNone = "none"
	KindZstd = "zstd"
)

// Compressor 对整块存档流做一次性压缩与解压。
type Compressor interface {
	// Name 返回写入清单的压缩算法名。
	Name() string

	// Compress 将 src 压缩后追加到 dst[:0]，返回完整结果。
	Compress(dst, src []byte) ([]byte, error)

	// Decompress 是 Compress 的逆过程，src 必须来自同类实现的 Compress。
	Decompress(dst, src []byte) ([]byte, error)

	Close()
}

// NopCompressor 原样返回输入，用于未开启压缩的存档。
type NopCompressor struct{}

var _ Compressor = NopCompressor{}

func (NopCompressor) Name() string { return KindNone }

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Close() {}

// New 按名称创建压缩器；minSize 只对 zstd 生效。
func New(kind string, minSize int) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindNone:
		return NopCompressor{}, nil
	case KindZstd:
		c, err := NewZstdCompressor()
		if err != nil {
			return nil, err
		}
		c.SetMinCompressSize(minSize)
		return c, nil
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unknown compression %q", kind)
	}
}

// Worthwhile 判断长度为 n 的输入是否值得用 c 压缩。
func Worthwhile(c Compressor, n int) bool {
	if c == nil || c.Name() == KindNone {
		return false
	}
	if t, ok := c.(interface{ MinCompressSize() int }); ok {
		return n >= t.MinCompressSize()
	}
	return true
}
