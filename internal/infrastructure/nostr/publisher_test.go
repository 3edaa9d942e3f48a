package nostr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfitem/nostr-digest/internal/middleware"
)

type relayMode int

const (
	relayAccept relayMode = iota
	relayReject
	relaySilent
)

// fakeRelay 一个最小的 NIP-01 中继，只处理 EVENT
type fakeRelay struct {
	srv      *httptest.Server
	mode     relayMode
	received atomic.Int32
}

func newFakeRelay(t *testing.T, mode relayMode) *fakeRelay {
	t.Helper()
	r := &fakeRelay{mode: mode}
	upgrader := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg []json.RawMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			var ev Event
			if len(msg) != 2 || json.Unmarshal(msg[1], &ev) != nil {
				continue
			}
			r.received.Add(1)
			switch r.mode {
			case relayAccept:
				conn.WriteJSON([]interface{}{"NOTICE", "welcome"})
				conn.WriteJSON([]interface{}{"OK", "someone-else", true, ""})
				conn.WriteJSON([]interface{}{"OK", ev.ID, ev.Verify() == nil, ""})
			case relayReject:
				conn.WriteJSON([]interface{}{"OK", ev.ID, false, "blocked: test relay"})
			case relaySilent:
			}
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) URL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func signedEvent(t *testing.T) *Event {
	t.Helper()
	ev, err := testSigner(t, time.Now()).Sign("digest", nil)
	require.NoError(t, err)
	return ev
}

func TestWebsocketSenderAccepted(t *testing.T) {
	relay := newFakeRelay(t, relayAccept)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, NewWebsocketSender().Send(ctx, relay.URL(), signedEvent(t)))
	assert.Equal(t, int32(1), relay.received.Load())
}

func TestWebsocketSenderRejected(t *testing.T) {
	relay := newFakeRelay(t, relayReject)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := NewWebsocketSender().Send(ctx, relay.URL(), signedEvent(t))
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected), "%v", err)
	assert.Equal(t, "blocked: test relay", rejected.Reason)
}

func TestWebsocketSenderTimeout(t *testing.T) {
	relay := newFakeRelay(t, relaySilent)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewWebsocketSender().Send(ctx, relay.URL(), signedEvent(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "%v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWebsocketSenderHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := NewWebsocketSender().Send(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), signedEvent(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestPublishPartialFailureSucceeds(t *testing.T) {
	relays := []*fakeRelay{
		newFakeRelay(t, relayAccept),
		newFakeRelay(t, relayReject),
		newFakeRelay(t, relayAccept),
		newFakeRelay(t, relayReject),
	}
	urls := make([]string, 0, len(relays))
	for _, r := range relays {
		urls = append(urls, r.URL())
	}

	var out bytes.Buffer
	metrics := middleware.NewMetricsCollector()
	p := NewPublisher(urls, NewWebsocketSender(), time.Second, &out, metrics)

	outcomes, err := p.Publish(context.Background(), signedEvent(t))
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	for i, o := range outcomes {
		assert.Equal(t, urls[i], o.Relay)
		assert.Equal(t, i%2 == 0, o.OK(), o.Relay)
	}

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, "[OK]"))
	assert.Equal(t, 2, strings.Count(text, "[ERR]"))
	assert.Contains(t, text, "blocked: test relay")

	report := metrics.GetReport()
	assert.Equal(t, int64(2), report.RelayAccepts)
	assert.Equal(t, int64(2), report.RelayRejects)
	assert.Equal(t, int64(1), report.NotesSent)
}

func TestPublishAllFail(t *testing.T) {
	urls := []string{
		newFakeRelay(t, relayReject).URL(),
		newFakeRelay(t, relaySilent).URL(),
		"ws://127.0.0.1:1",
	}

	var out bytes.Buffer
	p := NewPublisher(urls, NewWebsocketSender(), 300*time.Millisecond, &out, nil)

	start := time.Now()
	outcomes, err := p.Publish(context.Background(), signedEvent(t))
	assert.True(t, errors.Is(err, ErrPublishFailed), "%v", err)
	assert.Len(t, outcomes, 3)
	assert.Equal(t, 3, strings.Count(out.String(), "[ERR]"))
	assert.Less(t, time.Since(start), 2*time.Second, "relays are contacted concurrently")
}

type stubSender struct {
	fail map[string]bool
}

func (s stubSender) Send(ctx context.Context, relay string, ev *Event) error {
	if s.fail[relay] {
		return errors.New("stub failure")
	}
	return nil
}

func TestPublishNoRelays(t *testing.T) {
	p := NewPublisher(nil, stubSender{}, 0, nil, nil)
	_, err := p.Publish(context.Background(), &Event{ID: "x"})
	assert.True(t, errors.Is(err, ErrPublishFailed))
}

func TestPublishOneOfManySucceeds(t *testing.T) {
	p := NewPublisher([]string{"a", "b", "c"}, stubSender{fail: map[string]bool{"a": true, "c": true}}, 0, nil, nil)
	outcomes, err := p.Publish(context.Background(), &Event{ID: "x"})
	require.NoError(t, err)
	assert.False(t, outcomes[0].OK())
	assert.True(t, outcomes[1].OK())
	assert.False(t, outcomes[2].OK())
}

type slowSender struct {
	delay time.Duration
}

func (s slowSender) Send(ctx context.Context, relay string, ev *Event) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPublishContactsRelaysAtOnceOnSingleCPU(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	const delay = 300 * time.Millisecond
	relays := []string{"wss://a", "wss://b", "wss://c", "wss://d", "wss://e", "wss://f"}
	p := NewPublisher(relays, slowSender{delay: delay}, time.Second, nil, nil)

	start := time.Now()
	outcomes, err := p.Publish(context.Background(), signedEvent(t))
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, outcomes, len(relays))
	for _, o := range outcomes {
		assert.True(t, o.OK(), o.Relay)
	}
	assert.Less(t, elapsed, 2*delay, "sends should overlap, took %s", elapsed)
}
