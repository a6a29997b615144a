package log

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	_ WithLogger   = &Binder{}
	_ LoggerBinder = &Binder{}
)

// WithLogger 是一个用于访问组件本地 Logger 的接口。
type WithLogger interface {
	Logger() *MLogger
}

// LoggerBinder 是一个用于设置组件 Logger 的接口。
type LoggerBinder interface {
	SetLogger(logger *MLogger)
}

// Binder 嵌入到编码器、解码器、存档仓库等组件中，统一管理组件 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 将 Logger 绑定到 Binder 上。
func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// BindComponent 绑定一个携带组件名的全局 Logger 派生实例。
func (w *Binder) BindComponent(component string, fields ...zap.Field) {
	w.SetLogger(With(append([]zap.Field{FieldComponent(component)}, fields...)...))
}

// Logger 返回当前绑定的 Logger，未绑定时退回全局 Logger。
func (w *Binder) Logger() *MLogger {
	l := w.logger.Load()
	if l == nil {
		return With()
	}
	return l
}
