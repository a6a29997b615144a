package serializer

import (
	"github.com/lk2023060901/simsave/internal/json"
)

// JSONSerializer 基于 internal/json（sonic），用于存档清单等元数据。
type JSONSerializer struct {
	// Indent 非空时输出带缩进的 JSON。
	Indent string
}

var _ Serializer = (*JSONSerializer)(nil)

func (s JSONSerializer) Marshal(v any) ([]byte, error) {
	if s.Indent != "" {
		return json.MarshalIndent(v, "", s.Indent)
	}
	return json.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
