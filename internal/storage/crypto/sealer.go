package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

const (
	KindNone          = "none"
	KindAESGCMHMAC256 = "aes-256-gcm+hmac-sha256"
)

// Sealer 对落盘的对象流做加密与防篡改。
// aad 不加密但受完整性保护，存档使用写会话 ID 将对象流与清单绑定。
type Sealer interface {
	Name() string
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(packet, aad []byte) ([]byte, error)
}

// NopSealer 原样透传，用于未配置密钥的存档。
type NopSealer struct{}

var _ Sealer = NopSealer{}

func (NopSealer) Name() string { return KindNone }

func (NopSealer) Seal(plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

func (NopSealer) Open(packet, _ []byte) ([]byte, error) {
	return packet, nil
}

// FromHexKeys 根据十六进制密钥创建 Sealer，两个密钥都为空时返回 NopSealer。
func FromHexKeys(encKeyHex, macKeyHex string) (Sealer, error) {
	encKeyHex, macKeyHex = strings.TrimSpace(encKeyHex), strings.TrimSpace(macKeyHex)
	if encKeyHex == "" && macKeyHex == "" {
		return NopSealer{}, nil
	}
	encKey, err := hex.DecodeString(encKeyHex)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("seal key is not hex: %v", err)
	}
	macKey, err := hex.DecodeString(macKeyHex)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("mac key is not hex: %v", err)
	}
	return NewAESGCMHMAC(encKey, macKey)
}
