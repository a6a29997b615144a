package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSession   = "session"
	FieldNameObjectID  = "objectID"
	FieldNameSave      = "save"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldSession 返回一个包含读写会话 ID 的 zap 字段。
func FieldSession(id string) zap.Field {
	return zap.String(FieldNameSession, id)
}

// FieldObjectID 返回一个包含对象 ID 的 zap 字段。
func FieldObjectID(id int) zap.Field {
	return zap.Int(FieldNameObjectID, id)
}

// FieldSave 返回一个包含存档名的 zap 字段。
func FieldSave(name string) zap.Field {
	return zap.String(FieldNameSave, name)
}
