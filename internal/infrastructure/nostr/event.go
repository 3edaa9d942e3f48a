package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// KindTextNote NIP-01 纯文本笔记
const KindTextNote = 1

// Tag 单个标签，如 ["e", <id>, "", "reply"]
type Tag []string

// Tags 有序标签列表
type Tags []Tag

// ReplyTag 返回指向父笔记的 NIP-10 回复标签
func ReplyTag(parentID string) Tag {
	return Tag{"e", parentID, "", "reply"}
}

// Event 表示一条签名后的中继消息
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Serialize 返回计算 id 所用的规范数组 [0,pubkey,created_at,kind,tags,content]
func (e *Event) Serialize() []byte {
	b := make([]byte, 0, 128+len(e.Content))
	b = append(b, `[0,`...)
	b = appendString(b, e.PubKey)
	b = append(b, ',')
	b = strconv.AppendInt(b, e.CreatedAt, 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(e.Kind), 10)
	b = append(b, ",["...)
	for i, tag := range e.Tags {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '[')
		for j, v := range tag {
			if j > 0 {
				b = append(b, ',')
			}
			b = appendString(b, v)
		}
		b = append(b, ']')
	}
	b = append(b, "],"...)
	b = appendString(b, e.Content)
	b = append(b, ']')
	return b
}

// Hash 返回规范序列化的 sha256
func (e *Event) Hash() [32]byte {
	return sha256.Sum256(e.Serialize())
}

// Verify 检查 id 与签名
func (e *Event) Verify() error {
	hash := e.Hash()
	if hex.EncodeToString(hash[:]) != e.ID {
		return errors.New("event id does not match content")
	}
	pubBytes, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return fmt.Errorf("decode pubkey: %w", err)
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("parse pubkey: %w", err)
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	if !sig.Verify(hash[:], pub) {
		return errors.New("invalid signature")
	}
	return nil
}

// appendString 按 NIP-01 规则转义字符串，其余字符原样保留
func appendString(b []byte, s string) []byte {
	const hexDigits = "0123456789abcdef"
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b = append(b, '\\', '"')
		case '\\':
			b = append(b, '\\', '\\')
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		case '\b':
			b = append(b, '\\', 'b')
		case '\f':
			b = append(b, '\\', 'f')
		default:
			if c < 0x20 {
				b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
				continue
			}
			b = append(b, c)
		}
	}
	return append(b, '"')
}

// Signer 使用固定私钥签名笔记
type Signer struct {
	keys *Keys
	now  func() time.Time
}

// NewSigner 创建签名器
func NewSigner(keys *Keys) *Signer {
	return &Signer{keys: keys, now: time.Now}
}

// Keys 返回签名所用的密钥
func (s *Signer) Keys() *Keys {
	return s.keys
}

// Sign 构造 kind 1 笔记并签名，created_at 取当前 Unix 秒
func (s *Signer) Sign(content string, tags Tags) (*Event, error) {
	if tags == nil {
		tags = Tags{}
	}
	// 中继收到的是 JSON 编码后的内容，无效 UTF-8 会被替换，签名前先统一
	content = strings.ToValidUTF8(content, "\uFFFD")
	ev := &Event{
		PubKey:    s.keys.PublicKey(),
		CreatedAt: s.now().Unix(),
		Kind:      KindTextNote,
		Tags:      tags,
		Content:   content,
	}

	hash := ev.Hash()
	sig, err := schnorr.Sign(s.keys.priv, hash[:])
	if err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	ev.ID = hex.EncodeToString(hash[:])
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return ev, nil
}
