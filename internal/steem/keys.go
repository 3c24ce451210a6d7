package steem

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// PublicKeyPrefix is the address prefix of mainnet public keys.
const PublicKeyPrefix = "STM"

const wifVersion = 0x80

// ErrInvalidWIF is returned for malformed private keys.
var ErrInvalidWIF = errors.New("invalid WIF private key")

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// ParseWIF decodes a wallet-import-format private key.
func ParseWIF(wif string) (*PrivateKey, error) {
	raw, err := base58.Decode(wif)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWIF, err)
	}
	if len(raw) != 37 || raw[0] != wifVersion {
		return nil, ErrInvalidWIF
	}
	if !bytes.Equal(doubleSHA256(raw[:33])[:4], raw[33:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidWIF)
	}
	key, err := crypto.ToECDSA(raw[1:33])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWIF, err)
	}
	return &PrivateKey{key: key}, nil
}

// MustParseWIF is ParseWIF for tests and constants.
func MustParseWIF(wif string) *PrivateKey {
	k, err := ParseWIF(wif)
	if err != nil {
		panic(err)
	}
	return k
}

// WIF encodes the key in wallet-import format.
func (k *PrivateKey) WIF() string {
	raw := make([]byte, 0, 37)
	raw = append(raw, wifVersion)
	raw = append(raw, crypto.FromECDSA(k.key)...)
	raw = append(raw, doubleSHA256(raw)[:4]...)
	return base58.Encode(raw)
}

// Bytes returns the 32-byte secret.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.key)
}

// PublicKey returns the "STM..." form of the key's public half.
func (k *PrivateKey) PublicKey() string {
	return EncodePublicKey(crypto.CompressPubkey(&k.key.PublicKey))
}

// EncodePublicKey formats a 33-byte compressed public key.
func EncodePublicKey(compressed []byte) string {
	h := ripemd160.New()
	h.Write(compressed)
	checksum := h.Sum(nil)[:4]
	return PublicKeyPrefix + base58.Encode(append(append([]byte{}, compressed...), checksum...))
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
