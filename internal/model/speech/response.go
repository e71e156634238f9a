package speech

import "time"

// TranscriptionResponse 语音识别响应
type TranscriptionResponse struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Duration  int64     `json:"duration"` // milliseconds spent transcribing
	CreatedAt time.Time `json:"createdAt"`
}
