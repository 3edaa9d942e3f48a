package nostr

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T, at time.Time) *Signer {
	t.Helper()
	keys, err := ParseSecretKey(testNsec)
	require.NoError(t, err)
	s := NewSigner(keys)
	s.now = func() time.Time { return at }
	return s
}

func TestSignProducesVerifiableTextNote(t *testing.T) {
	at := time.Unix(1716200000, 0)
	ev, err := testSigner(t, at).Sign("hello\nworld", nil)
	require.NoError(t, err)

	assert.Equal(t, KindTextNote, ev.Kind)
	assert.Equal(t, int64(1716200000), ev.CreatedAt)
	assert.NotNil(t, ev.Tags)
	assert.Empty(t, ev.Tags)
	assert.Len(t, ev.ID, 64)
	assert.Len(t, ev.Sig, 128)
	require.NoError(t, ev.Verify())
}

func TestSignIDIsDeterministicForSameInput(t *testing.T) {
	at := time.Unix(1716200000, 0)
	a, err := testSigner(t, at).Sign("same", nil)
	require.NoError(t, err)
	b, err := testSigner(t, at).Sign("same", nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	c, err := testSigner(t, at.Add(time.Second)).Sign("same", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestMutationInvalidatesSignature(t *testing.T) {
	ev, err := testSigner(t, time.Now()).Sign("original", nil)
	require.NoError(t, err)

	ev.Content = "tampered"
	assert.Error(t, ev.Verify())
}

func TestReplyTag(t *testing.T) {
	s := testSigner(t, time.Now())
	parent, err := s.Sign("parent", nil)
	require.NoError(t, err)
	child, err := s.Sign("child", Tags{ReplyTag(parent.ID)})
	require.NoError(t, err)

	require.Len(t, child.Tags, 1)
	assert.Equal(t, Tag{"e", parent.ID, "", "reply"}, child.Tags[0])
	require.NoError(t, child.Verify())
}

func TestSerializeCanonicalForm(t *testing.T) {
	ev := &Event{
		PubKey:    "ab",
		CreatedAt: 42,
		Kind:      1,
		Tags:      Tags{{"e", "id", "", "reply"}},
		Content:   "quote\" slash\\ nl\n tab\t bell\x07 <b>&₿",
	}
	want := `[0,"ab",42,1,[["e","id","","reply"]],"quote\" slash\\ nl\n tab\t bell\u0007 <b>&₿"]`
	assert.Equal(t, want, string(ev.Serialize()))

	var decoded []interface{}
	require.NoError(t, json.Unmarshal(ev.Serialize(), &decoded))
	assert.Equal(t, ev.Content, decoded[5])
}

func TestSerializeEmptyTags(t *testing.T) {
	ev := &Event{PubKey: "ab", CreatedAt: 1, Kind: 1}
	assert.Equal(t, `[0,"ab",1,1,[],""]`, string(ev.Serialize()))
}

func TestEventIDMatchesKnownVector(t *testing.T) {
	at := time.Unix(1716200000, 0)

	ev, err := testSigner(t, at).Sign("hello", nil)
	require.NoError(t, err)
	assert.Equal(t, testPubHex, ev.PubKey)
	assert.Equal(t, "4ab5ac05c3f163b4aabb174455cee4b6aae9ce6efd4acf884994fc37862f7b88", ev.ID)

	reply, err := testSigner(t, at).Sign("## Core\n\n• a<b & \"q\"", Tags{ReplyTag(strings.Repeat("00", 32))})
	require.NoError(t, err)
	assert.Equal(t, "4440c2465b1e80b55471a368d6431353d497ea7c63e2a69dd09741ea9702eb39", reply.ID)
	require.NoError(t, reply.Verify())
}

func TestSignReplacesInvalidUTF8(t *testing.T) {
	ev, err := testSigner(t, time.Unix(1716200000, 0)).Sign("bad \xff\xfe tag", nil)
	require.NoError(t, err)
	assert.Equal(t, "bad \uFFFD tag", ev.Content)

	// 按中继的方式解码后重新计算 id
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var received Event
	require.NoError(t, json.Unmarshal(raw, &received))
	assert.Equal(t, ev.Content, received.Content)
	require.NoError(t, received.Verify())
}
