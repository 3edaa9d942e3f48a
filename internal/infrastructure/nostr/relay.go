package nostr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
)

const (
	wsReadBuffer  = 1024
	wsWriteBuffer = 1024
	wsReadLimit   = 1 << 20
)

// Sender 向单个中继发送事件并等待确认
type Sender interface {
	Send(ctx context.Context, relay string, ev *Event) error
}

// RejectedError 中继以 OK false 拒绝了事件
type RejectedError struct {
	Relay  string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return "rejected by relay"
	}
	return "rejected by relay: " + e.Reason
}

type handshakeError struct {
	err    error
	status string
}

func (e handshakeError) Error() string {
	s := e.err.Error()
	if e.status != "" {
		s += " (HTTP status " + e.status + ")"
	}
	return s
}

func (e handshakeError) Unwrap() error {
	return e.err
}

// WebsocketSender 通过 websocket 连接按 NIP-01 发布事件，每次发送新建连接
type WebsocketSender struct {
	dialer *websocket.Dialer
}

// NewWebsocketSender 创建 websocket 发送器
func NewWebsocketSender() *WebsocketSender {
	return &WebsocketSender{
		dialer: &websocket.Dialer{
			ReadBufferSize:  wsReadBuffer,
			WriteBufferSize: wsWriteBuffer,
			Proxy:           http.ProxyFromEnvironment,
		},
	}
}

// Send 发送 ["EVENT", ev] 并等待与事件 id 匹配的 ["OK", id, accepted, message]
func (s *WebsocketSender) Send(ctx context.Context, relay string, ev *Event) error {
	conn, resp, err := s.dialer.DialContext(ctx, relay, nil)
	if err != nil {
		hErr := handshakeError{err: err}
		if resp != nil {
			hErr.status = resp.Status
		}
		return hErr
	}
	defer conn.Close()

	// 超时或取消时关闭连接以打断阻塞的读写，此时 ctx.Err() 一定非空
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	conn.SetReadLimit(wsReadLimit)

	if err := conn.WriteJSON([]interface{}{"EVENT", ev}); err != nil {
		return wrapCtx(ctx, fmt.Errorf("write event: %w", err))
	}

	for {
		var msg []json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return wrapCtx(ctx, fmt.Errorf("read response: %w", err))
		}
		if len(msg) == 0 {
			continue
		}
		var label string
		if err := json.Unmarshal(msg[0], &label); err != nil {
			continue
		}

		switch label {
		case "OK":
			if len(msg) < 3 {
				continue
			}
			var id string
			var accepted bool
			var reason string
			if json.Unmarshal(msg[1], &id) != nil || id != ev.ID {
				continue
			}
			if err := json.Unmarshal(msg[2], &accepted); err != nil {
				return fmt.Errorf("malformed OK message: %w", err)
			}
			if len(msg) > 3 {
				json.Unmarshal(msg[3], &reason)
			}
			if !accepted {
				return &RejectedError{Relay: relay, Reason: reason}
			}
			return nil
		case "NOTICE":
			var notice string
			if len(msg) > 1 {
				json.Unmarshal(msg[1], &notice)
			}
			logger.Debug("中继通知", "relay", relay, "notice", notice)
		}
	}
}

// wrapCtx 优先报告上下文超时，便于日志区分
func wrapCtx(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
