// Package json 是 bytedance/sonic 的薄封装，统一仓库内的 JSON 编解码入口。
package json

import (
	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent 以缩进格式输出，用于写入人类可读的清单文件。
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}
