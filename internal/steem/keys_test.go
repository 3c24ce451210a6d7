package steem

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWIF = "5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ"

func TestParseWIF(t *testing.T) {
	key, err := ParseWIF(testWIF)
	require.NoError(t, err)

	assert.Equal(t, "0c28fca386c7a227600b2fe50b7cae11ec86d3bf1fbe471be89827e19d72aa1d", hex.EncodeToString(key.Bytes()))
	assert.Equal(t, testWIF, key.WIF())
}

func TestParseWIF_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad base58":   "0OIl",
		"too short":    "5Hue",
		"bad checksum": testWIF[:len(testWIF)-1] + "K",
	}
	for name, wif := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWIF(wif)
			assert.ErrorIs(t, err, ErrInvalidWIF)
		})
	}
}

func TestPrivateKey_PublicKey(t *testing.T) {
	pub := MustParseWIF(testWIF).PublicKey()

	assert.True(t, strings.HasPrefix(pub, PublicKeyPrefix))
	assert.Len(t, pub, 53)
}

func TestSign_RecoversSigner(t *testing.T) {
	key := MustParseWIF(testWIF)
	tx, err := NewTransaction(testProps(), time.Minute,
		VoteOperation{Voter: "curator", Author: "bob", Permlink: "post", Weight: 5000})
	require.NoError(t, err)

	chainID := make([]byte, 32)
	require.NoError(t, Sign(tx, chainID, key))
	require.Len(t, tx.Signatures, 1)

	sig, err := hex.DecodeString(tx.Signatures[0])
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.True(t, isCanonical(sig))
	assert.GreaterOrEqual(t, sig[0], byte(31))

	recovered, err := RecoverPublicKey(Digest(chainID, tx), tx.Signatures[0])
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), recovered)
}

func TestIsCanonical(t *testing.T) {
	sig := make([]byte, 65)
	sig[1], sig[33] = 0x10, 0x10
	assert.True(t, isCanonical(sig))

	sig[1] = 0x80
	assert.False(t, isCanonical(sig), "high bit on r")

	sig[1] = 0x00
	sig[2] = 0x01
	assert.False(t, isCanonical(sig), "padded r")
}

func TestParseChainID(t *testing.T) {
	id, err := ParseChainID(strings.Repeat("00", 32))
	require.NoError(t, err)
	assert.Len(t, id, 32)

	_, err = ParseChainID("00")
	assert.Error(t, err)
}
