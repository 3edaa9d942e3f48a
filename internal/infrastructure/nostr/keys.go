package nostr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	hrpSecretKey = "nsec"
	hrpPublicKey = "npub"
)

// ErrInvalidKey 私钥格式错误
var ErrInvalidKey = errors.New("invalid secret key")

// Keys 持有签名私钥及其 x-only 公钥
type Keys struct {
	priv   *btcec.PrivateKey
	pubHex string
}

// ParseSecretKey 解析 NIP-19 nsec 编码或 64 位十六进制私钥
func ParseSecretKey(s string) (*Keys, error) {
	s = strings.TrimSpace(s)

	var raw []byte
	if strings.HasPrefix(strings.ToLower(s), hrpSecretKey+"1") {
		hrp, data, err := decodeBech32(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if hrp != hrpSecretKey {
			return nil, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidKey, hrp)
		}
		raw = data
	} else {
		data, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		raw = data
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidKey, len(raw))
	}

	priv, pub := btcec.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero key", ErrInvalidKey)
	}
	return &Keys{priv: priv, pubHex: hex.EncodeToString(schnorr.SerializePubKey(pub))}, nil
}

// PublicKey 返回十六进制 x-only 公钥
func (k *Keys) PublicKey() string {
	return k.pubHex
}

// Npub 返回 NIP-19 npub 编码的公钥
func (k *Keys) Npub() string {
	raw, _ := hex.DecodeString(k.pubHex)
	s, err := encodeBech32(hrpPublicKey, raw)
	if err != nil {
		return k.pubHex
	}
	return s
}

// Nsec 返回 NIP-19 nsec 编码的私钥
func (k *Keys) Nsec() string {
	s, _ := encodeBech32(hrpSecretKey, k.priv.Serialize())
	return s
}

func decodeBech32(s string) (string, []byte, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return "", nil, err
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, raw, nil
}

func encodeBech32(hrp string, raw []byte) (string, error) {
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, data)
}
