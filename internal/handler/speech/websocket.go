package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/docchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/docchat/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	// maxBufferedAudio 单条语音缓冲上限
	maxBufferedAudio = 32 << 20
	// maxFrameSize 单帧上限，base64 音频帧需留出余量
	maxFrameSize = maxBufferedAudio + 1<<20
)

// Notifier 在会话出现待处理回复时被调用
type Notifier interface {
	Notify(sessionID string)
}

// WebSocketHandler 会话的双向实时通道：接收文本/语音/产品模式，推送会话快照
type WebSocketHandler struct {
	speechSvc SpeechService
	chatSvc   *chatservice.Service
	notifier  Notifier
	upgrader  websocket.Upgrader
	readLimit int64
}

// NewWebSocketHandler 创建WebSocket处理器，speechSvc 可以为 nil
func NewWebSocketHandler(speechSvc SpeechService, chatSvc *chatservice.Service, notifier Notifier) *WebSocketHandler {
	return &WebSocketHandler{
		speechSvc: speechSvc,
		chatSvc:   chatSvc,
		notifier:  notifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readLimit: maxFrameSize,
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Content string `json:"content"`
}

// AudioMessage 音频消息，IsFinal 为 true 时触发转写
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// ProductModeMessage 产品搜索模式开关
type ProductModeMessage struct {
	Enabled bool `json:"enabled"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection 串行化同一连接上的写操作
type connection struct {
	conn      *websocket.Conn
	sessionID string

	writeMu sync.Mutex

	audioFormat string
	language    string
	buffer      bytes.Buffer
}

func (c *connection) send(msgType string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msgType, err)
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	updates, cancelSub, err := h.chatSvc.Subscribe(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	defer cancelSub()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.readLimit)

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{conn: conn, sessionID: sessionID}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	if current, err := h.chatSvc.Snapshot(ctx, sessionID); err == nil {
		c.send("conversation", current)
	}

	go h.pushLoop(ctx, c, updates)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			c.sendError("session mismatch")
			continue
		}

		h.handleMessage(ctx, c, &msg)
	}
}

// pushLoop 转发会话快照并定期发送 ping
func (h *WebSocketHandler) pushLoop(ctx context.Context, c *connection, updates <-chan chat.Conversation) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case conv, ok := <-updates:
			if !ok {
				return
			}
			c.send("conversation", conv)
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *connection, msg *inboundMessage) {
	switch msg.Type {
	case "message":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.sendError("invalid message payload")
			return
		}
		h.appendUserText(ctx, c, text.Content)
	case "audio":
		h.handleAudioMessage(ctx, c, msg.Data)
	case "productMode":
		var mode ProductModeMessage
		if err := json.Unmarshal(msg.Data, &mode); err != nil {
			c.sendError("invalid productMode payload")
			return
		}
		if _, err := h.chatSvc.SetProductMode(ctx, c.sessionID, mode.Enabled); err != nil {
			c.sendError(err.Error())
		}
	case "reset":
		if _, err := h.chatSvc.Reset(ctx, c.sessionID); err != nil {
			c.sendError(err.Error())
		}
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, c *connection, raw json.RawMessage) {
	if h.speechSvc == nil {
		c.sendError("speech transcription unavailable")
		return
	}

	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		c.sendError("invalid audio payload")
		return
	}

	if c.buffer.Len()+len(audio.AudioData) > maxBufferedAudio {
		c.buffer.Reset()
		c.sendError("audio message too large")
		return
	}
	c.buffer.Write(audio.AudioData)
	if audio.Format != "" {
		c.audioFormat = audio.Format
	}
	if audio.Language != "" {
		c.language = audio.Language
	}

	if !audio.IsFinal {
		return
	}

	audioBytes := append([]byte(nil), c.buffer.Bytes()...)
	c.buffer.Reset()
	if len(audioBytes) == 0 {
		return
	}

	format := c.audioFormat
	if format == "" {
		format = "wav"
	}
	log.Printf("[websocket] transcribing audio session=%s format=%s bytes=%d", c.sessionID, format, len(audioBytes))

	resp, err := h.speechSvc.TranscribeBuffer(ctx, c.sessionID, audioBytes, format, c.language)
	if err != nil {
		c.sendError(fmt.Sprintf("transcription failed: %v", err))
		return
	}
	c.send("transcription", resp)

	if strings.TrimSpace(resp.Text) != "" {
		h.appendUserText(ctx, c, resp.Text)
	}
}

// appendUserText 追加用户消息；新快照经订阅推送给客户端
func (h *WebSocketHandler) appendUserText(ctx context.Context, c *connection, content string) {
	if _, err := h.chatSvc.AppendUserMessage(ctx, c.sessionID, content); err != nil {
		c.sendError(err.Error())
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(c.sessionID)
	}
}
