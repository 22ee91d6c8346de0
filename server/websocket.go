package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-assistant/assistant"
	"github.com/becomeliminal/nim-assistant/core"
)

const (
	wsReadTimeout  = 6 * time.Minute
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 64 << 10
)

// Client message types.
const (
	MsgNewConversation    = "new_conversation"
	MsgResumeConversation = "resume_conversation"
	MsgMessage            = "message"
	MsgConfirm            = "confirm"
	MsgPing               = "ping"
)

// Server message types.
const (
	MsgConversationStarted = "conversation_started"
	MsgThinking            = "thinking"
	MsgTextChunk           = "text_chunk"
	MsgText                = "text"
	MsgConfirmationNeeded  = "confirmation_needed"
	MsgError               = "error"
	MsgPong                = "pong"
)

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content,omitempty"`

	// ActionID and Approve answer a confirmation_needed frame.
	ActionID string `json:"action_id,omitempty"`
	Approve  bool   `json:"approve,omitempty"`
}

// ServerMessage is a frame sent to the client.
type ServerMessage struct {
	Type      string   `json:"type"`
	ThreadID  string   `json:"thread_id,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
	Content   string   `json:"content,omitempty"`
	Outcome   string   `json:"outcome,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`

	PendingAction *core.PendingAction `json:"pending_action,omitempty"`
}

func newThreadID() string {
	return uuid.New().String()
}

// wsConn serializes writes to one connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// handleWebSocket runs one chat connection. Each connection tracks a
// current thread; messages are handled in arrival order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsConn{conn: raw}
	defer raw.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	raw.SetReadLimit(wsReadLimit)
	raw.SetReadDeadline(time.Now().Add(wsReadTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	log := s.logger.With("remote", r.RemoteAddr)
	log.Debug("websocket connected")

	threadID := ""
	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(ServerMessage{Type: MsgError, Content: "invalid message: " + err.Error()})
			continue
		}

		switch msg.Type {
		case MsgPing:
			err = c.send(ServerMessage{Type: MsgPong})
		case MsgNewConversation:
			threadID = newThreadID()
			err = c.send(ServerMessage{Type: MsgConversationStarted, ThreadID: threadID})
		case MsgResumeConversation:
			if strings.TrimSpace(msg.ThreadID) == "" {
				err = c.send(ServerMessage{Type: MsgError, Content: "thread_id is required"})
				break
			}
			threadID = msg.ThreadID
			if err = c.send(ServerMessage{Type: MsgConversationStarted, ThreadID: threadID}); err != nil {
				break
			}
			if pending, ok := s.svc.Pending(threadID); ok {
				err = c.send(ServerMessage{Type: MsgConfirmationNeeded, ThreadID: threadID, Content: "A change is waiting for your confirmation.", PendingAction: pending})
			}
		case MsgConfirm:
			if threadID == "" || strings.TrimSpace(msg.ActionID) == "" {
				err = c.send(ServerMessage{Type: MsgError, Content: "confirm needs an open conversation and an action_id"})
				break
			}
			err = s.confirmFrame(ctx, c, threadID, msg.ActionID, msg.Approve)
		case MsgMessage:
			if msg.ThreadID != "" {
				threadID = msg.ThreadID
			}
			if threadID == "" {
				threadID = newThreadID()
				if err = c.send(ServerMessage{Type: MsgConversationStarted, ThreadID: threadID}); err != nil {
					break
				}
			}
			err = s.chatFrame(ctx, c, threadID, msg.Content)
		default:
			err = c.send(ServerMessage{Type: MsgError, Content: "unknown message type " + msg.Type})
		}
		if err != nil {
			log.Debug("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) chatFrame(ctx context.Context, c *wsConn, threadID, content string) error {
	if err := c.send(ServerMessage{Type: MsgThinking, ThreadID: threadID}); err != nil {
		return err
	}
	resp, err := s.svc.Chat(ctx, assistant.ChatRequest{ThreadID: threadID, Message: content, Stream: chunkSender(c, threadID)})
	if err != nil {
		return c.send(ServerMessage{Type: MsgError, ThreadID: threadID, Content: err.Error()})
	}
	return c.send(replyFrame(resp))
}

func (s *Server) confirmFrame(ctx context.Context, c *wsConn, threadID, actionID string, approve bool) error {
	if err := c.send(ServerMessage{Type: MsgThinking, ThreadID: threadID}); err != nil {
		return err
	}
	resp, err := s.svc.Confirm(ctx, assistant.ConfirmRequest{
		ThreadID: threadID,
		ActionID: actionID,
		Approve:  approve,
		Stream:   chunkSender(c, threadID),
	})
	if err != nil {
		return c.send(ServerMessage{Type: MsgError, ThreadID: threadID, Content: err.Error()})
	}
	return c.send(replyFrame(resp))
}

// chunkSender forwards streamed text as text_chunk frames. The final
// reply frame follows separately. Write errors surface on that frame.
func chunkSender(c *wsConn, threadID string) func(string, bool) {
	return func(chunk string, done bool) {
		if done || chunk == "" {
			return
		}
		c.send(ServerMessage{Type: MsgTextChunk, ThreadID: threadID, Content: chunk})
	}
}

func replyFrame(resp *assistant.ChatResponse) ServerMessage {
	typ := MsgText
	if resp.PendingAction != nil {
		typ = MsgConfirmationNeeded
	}
	return ServerMessage{
		Type:          typ,
		ThreadID:      resp.ThreadID,
		RequestID:     resp.RequestID,
		Content:       resp.Response,
		Outcome:       resp.Outcome,
		Warnings:      resp.Warnings,
		PendingAction: resp.PendingAction,
	}
}
