package speech

import (
	"io"
	"path/filepath"
	"strings"
)

// TranscriptionRequest 语音识别请求
type TranscriptionRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`   // mp3, wav, webm, etc.
	Language  string    `json:"language"` // vi, en, zh, etc.
}

// InferAudioFormat 从文件名推断音频格式，未知扩展名按 wav 处理
func InferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".ogg", ".flac":
		return strings.TrimPrefix(ext, ".")
	default:
		return "wav"
	}
}
