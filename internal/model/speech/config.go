package speech

// SpeechConfig 语音转写服务配置
type SpeechConfig struct {
	BaseURL  string `json:"baseUrl"`  // whisper 服务地址，例如 http://localhost:9000
	Language string `json:"language"` // 默认识别语言
	Timeout  int    `json:"timeout"`  // seconds
}
