package log

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap/zapcore"
)

// lazyCore 推迟 core.With(fields) 的执行，直到第一次真正需要输出日志。
// 编码器和解码器会为每个会话派生 Logger，大部分从不输出，懒加载可以省掉字段编码开销。
type lazyCore struct {
	base   atomic.Pointer[zapcore.Core]
	once   sync.Once
	fields []zapcore.Field
}

var _ zapcore.Core = (*lazyCore)(nil)

// NewLazyWith 返回一个在首次使用时才附加 fields 的 Core。
func NewLazyWith(core zapcore.Core, fields []zapcore.Field) zapcore.Core {
	c := &lazyCore{fields: fields}
	c.base.Store(&core)
	return c
}

func (c *lazyCore) resolve() zapcore.Core {
	c.once.Do(func() {
		with := (*c.base.Load()).With(c.fields)
		c.base.Store(&with)
	})
	return *c.base.Load()
}

// Enabled 只读取级别，不触发字段附加。
func (c *lazyCore) Enabled(level zapcore.Level) bool {
	return (*c.base.Load()).Enabled(level)
}

func (c *lazyCore) With(fields []zapcore.Field) zapcore.Core {
	return c.resolve().With(fields)
}

func (c *lazyCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return c.resolve().Check(e, ce)
}

func (c *lazyCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.resolve().Write(e, fields)
}

func (c *lazyCore) Sync() error {
	return c.resolve().Sync()
}
