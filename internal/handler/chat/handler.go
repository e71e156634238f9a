package chat

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/docchat/backend/internal/model/speech"
	chatService "github.com/zhouzirui/docchat/backend/internal/service/chat"
	"github.com/zhouzirui/docchat/backend/pkg/utils"
)

// maxAudioUpload 音频上传大小上限
const maxAudioUpload = 32 << 20

// Notifier 在会话出现待处理回复时被调用
type Notifier interface {
	Notify(sessionID string)
}

// Transcriber 语音转写能力
type Transcriber interface {
	Transcribe(ctx context.Context, req *speech.TranscriptionRequest) (*speech.TranscriptionResponse, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc     *chatService.Service
	notifier    Notifier
	transcriber Transcriber
}

// New 创建聊天处理器，transcriber 可以为 nil
func New(chatSvc *chatService.Service, notifier Notifier, transcriber Transcriber) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		notifier:    notifier,
		transcriber: transcriber,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetConversation)
	r.Post("/sessions/{sessionID}/messages", h.handlePostMessage)
	r.Delete("/sessions/{sessionID}/messages", h.handleReset)
	r.Put("/sessions/{sessionID}/product-mode", h.handleProductMode)
	r.Post("/sessions/{sessionID}/transcribe", h.handleTranscribe)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatSvc.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, conv)
}

// handlePostMessage 追加用户消息并排队生成回复
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.appendAndNotify(r.Context(), w, chi.URLParam(r, "sessionID"), payload.Content)
}

// handleReset 清空会话，相当于开启新对话
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatSvc.Reset(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleProductMode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Enabled == nil {
		utils.RespondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	conv, err := h.chatSvc.SetProductMode(r.Context(), chi.URLParam(r, "sessionID"), *payload.Enabled)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, conv)
}

// handleTranscribe 转写语音，非空结果作为用户消息追加
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "speech transcription unavailable")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	resp, err := h.transcriber.Transcribe(r.Context(), &speech.TranscriptionRequest{
		SessionID: sessionID,
		AudioData: file,
		Filename:  header.Filename,
		Format:    speech.InferAudioFormat(header.Filename),
		Language:  r.FormValue("language"),
	})
	if err != nil {
		log.Printf("[chat] session=%s transcription failed: %v", sessionID, err)
		utils.RespondError(w, http.StatusBadGateway, "speech recognition failed")
		return
	}

	if strings.TrimSpace(resp.Text) == "" {
		conv, err := h.chatSvc.Snapshot(r.Context(), sessionID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, conv)
		return
	}

	h.appendAndNotify(r.Context(), w, sessionID, resp.Text)
}

func (h *Handler) appendAndNotify(ctx context.Context, w http.ResponseWriter, sessionID, content string) {
	conv, err := h.chatSvc.AppendUserMessage(ctx, sessionID, content)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if h.notifier != nil {
		h.notifier.Notify(sessionID)
	}
	utils.RespondJSON(w, http.StatusAccepted, conv)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrTurnPending):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
