package serializer

// Serializer 抽象了“对象 <-> 字节”的一次性编解码能力。
type Serializer interface {
	Marshal(v any) ([]byte, error)

	// Unmarshal 将 data 解码到 v，v 通常为指针。
	Unmarshal(data []byte, v any) error
}
