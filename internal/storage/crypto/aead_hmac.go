package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

var (
	// ErrPacketTooShort 表示密文长度不足以容纳 nonce 与 MAC。
	ErrPacketTooShort = errors.New("crypto: packet too short")

	// ErrInvalidMAC 表示 HMAC 校验失败，密钥错误或内容被改动。
	ErrInvalidMAC = errors.New("crypto: invalid mac")
)

const aes256KeySizeBytes = 32

// AESGCMHMAC 先用 AES-256-GCM 加密，再对 nonce、密文与 aad 计算 HMAC-SHA256。
//
// 格式：nonce || ciphertext || mac
type AESGCMHMAC struct {
	aead    cipher.AEAD
	hmacKey []byte
}

var _ Sealer = (*AESGCMHMAC)(nil)

// NewAESGCMHMAC 要求 encKey 为 32 字节，macKey 非空。
func NewAESGCMHMAC(encKey, macKey []byte) (*AESGCMHMAC, error) {
	if len(encKey) != aes256KeySizeBytes {
		return nil, merr.WrapErrParameterInvalid(aes256KeySizeBytes, len(encKey), "seal key bytes")
	}
	if len(macKey) == 0 {
		return nil, merr.WrapErrParameterMissing("mac key")
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMHMAC{
		aead:    aead,
		hmacKey: append([]byte(nil), macKey...),
	}, nil
}

func (c *AESGCMHMAC) Name() string { return KindAESGCMHMAC256 }

func (c *AESGCMHMAC) mac(nonce, ciphertext, aad []byte) []byte {
	m := hmac.New(sha256.New, c.hmacKey)
	_, _ = m.Write(nonce)
	_, _ = m.Write(ciphertext)
	_, _ = m.Write(aad)
	return m.Sum(nil)
}

func (c *AESGCMHMAC) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := c.aead.Seal(nil, nonce, plaintext, aad)
	sum := c.mac(nonce, ciphertext, aad)

	packet := make([]byte, 0, len(nonce)+len(ciphertext)+len(sum))
	packet = append(packet, nonce...)
	packet = append(packet, ciphertext...)
	return append(packet, sum...), nil
}

// Open 先校验 MAC 再解密，aad 必须与 Seal 时一致。
func (c *AESGCMHMAC) Open(packet, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(packet) < nonceSize+sha256.Size {
		return nil, ErrPacketTooShort
	}
	nonce := packet[:nonceSize]
	macOffset := len(packet) - sha256.Size
	ciphertext := packet[nonceSize:macOffset]

	if !hmac.Equal(c.mac(nonce, ciphertext, aad), packet[macOffset:]) {
		return nil, ErrInvalidMAC
	}
	return c.aead.Open(nil, nonce, ciphertext, aad)
}
