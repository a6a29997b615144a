package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

var (
	encKeyHex = hex.EncodeToString(bytes.Repeat([]byte{0x11}, 32))
	macKeyHex = hex.EncodeToString([]byte("ledger-mac"))
)

func TestFromHexKeys(t *testing.T) {
	s, err := FromHexKeys("", " ")
	require.NoError(t, err)
	assert.Equal(t, KindNone, s.Name())

	s, err = FromHexKeys(encKeyHex, macKeyHex)
	require.NoError(t, err)
	assert.Equal(t, KindAESGCMHMAC256, s.Name())

	_, err = FromHexKeys("zz", macKeyHex)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
	_, err = FromHexKeys("abcd", macKeyHex)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
	_, err = FromHexKeys(encKeyHex, "")
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}

func TestSealOpen(t *testing.T) {
	s, err := FromHexKeys(encKeyHex, macKeyHex)
	require.NoError(t, err)

	plain := []byte("#0{\n  type: \"town.Place\",\n  Name: \"Mill\"\n}\n")
	aad := []byte("session-1")
	packet, err := s.Seal(plain, aad)
	require.NoError(t, err)
	assert.NotContains(t, string(packet), "town.Place")

	again, err := s.Seal(plain, aad)
	require.NoError(t, err)
	assert.NotEqual(t, packet, again)

	out, err := s.Open(packet, aad)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	_, err = s.Open(packet, []byte("session-2"))
	assert.ErrorIs(t, err, ErrInvalidMAC)

	tampered := append([]byte(nil), packet...)
	tampered[20] ^= 0xFF
	_, err = s.Open(tampered, aad)
	assert.ErrorIs(t, err, ErrInvalidMAC)

	_, err = s.Open(packet[:10], aad)
	assert.ErrorIs(t, err, ErrPacketTooShort)

	other, err := FromHexKeys(encKeyHex, hex.EncodeToString([]byte("other")))
	require.NoError(t, err)
	_, err = other.Open(packet, aad)
	assert.ErrorIs(t, err, ErrInvalidMAC)
}

func TestNopSealer(t *testing.T) {
	var s NopSealer
	out, err := s.Seal([]byte("x"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), out)
	out, err = s.Open([]byte("y"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), out)
}
