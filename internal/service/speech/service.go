package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhouzirui/docchat/backend/internal/model/speech"
)

// ErrTranscription 包装所有转写失败。
var ErrTranscription = errors.New("transcription failed")

// ErrNotConfigured 表示未配置 whisper 服务地址。
var ErrNotConfigured = errors.New("speech service not configured")

// Service 调用 whisper 转写服务
type Service struct {
	config     *speech.SpeechConfig
	httpClient *http.Client
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig) *Service {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Service{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type transcribeResponse struct {
	Transcribe string `json:"transcribe"`
}

// Transcribe 以 multipart 上传音频到 {BaseURL}/transcribe，读取 {"transcribe": "..."}。
func (s *Service) Transcribe(ctx context.Context, req *speech.TranscriptionRequest) (*speech.TranscriptionResponse, error) {
	if s.config.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if req == nil || req.AudioData == nil {
		return nil, fmt.Errorf("%w: no audio data", ErrTranscription)
	}

	filename := req.Filename
	if filename == "" {
		format := req.Format
		if format == "" {
			format = "wav"
		}
		filename = "recorded_audio." + format
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	if _, err := io.Copy(part, req.AudioData); err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrTranscription, err)
	}

	language := req.Language
	if language == "" {
		language = s.config.Language
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.config.BaseURL, "/")+"/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: whisper returned status %d: %s", ErrTranscription, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTranscription, err)
	}

	elapsed := time.Since(start)
	text := strings.TrimSpace(result.Transcribe)
	log.Printf("[speech] session=%s transcribed %d chars in %s", req.SessionID, len(text), elapsed)

	return &speech.TranscriptionResponse{
		SessionID: req.SessionID,
		Text:      text,
		Duration:  elapsed.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.TranscriptionResponse, error) {
	req := &speech.TranscriptionRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audioData),
		Format:    format,
		Language:  language,
	}

	return s.Transcribe(ctx, req)
}

// Enabled 表示是否配置了转写服务。
func (s *Service) Enabled() bool {
	return s != nil && s.config != nil && s.config.BaseURL != ""
}
