package serializer

import (
	"github.com/lk2023060901/simsave/pkg/objgraph"
)

// GraphSerializer 以对象图文本格式编解码单条记录，每次调用使用独立的新会话。
// 需要跨记录共享对象时请直接使用 objgraph.Encoder/Decoder。
type GraphSerializer struct {
	Registry *objgraph.Registry
}

var _ Serializer = (*GraphSerializer)(nil)

func (s GraphSerializer) Marshal(v any) ([]byte, error) {
	return objgraph.Marshal(s.Registry, v)
}

func (s GraphSerializer) Unmarshal(data []byte, v any) error {
	return objgraph.Unmarshal(s.Registry, data, v)
}
