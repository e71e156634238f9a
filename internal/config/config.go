package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server      ServerConfig
	AI          AIConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Retrieval   RetrievalConfig
	Speech      SpeechConfig
	Web         WebConfig
	Product     ProductConfig
	Ingest      IngestConfig
	Resolver    ResolverConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	embedding, err := loadEmbeddingConfig()
	if err != nil {
		return nil, err
	}

	retrieval, err := loadRetrievalConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	web, err := loadWebConfig()
	if err != nil {
		return nil, err
	}

	product, err := loadProductConfig()
	if err != nil {
		return nil, err
	}

	ingest, err := loadIngestConfig()
	if err != nil {
		return nil, err
	}

	resolver, err := loadResolverConfig()
	if err != nil {
		return nil, err
	}

	vectorStore, err := loadVectorStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:      server,
		AI:          ai,
		Embedding:   embedding,
		VectorStore: vectorStore,
		Retrieval:   retrieval,
		Speech:      speech,
		Web:         web,
		Product:     product,
		Ingest:      ingest,
		Resolver:    resolver,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址与 CORS 来源。
func loadServerConfig() (ServerConfig, error) {
	origins := splitListEnv("CORS_ALLOWED_ORIGINS")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// splitListEnv 读取逗号分隔的列表，忽略空项。
func splitListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// AI providers understood by NewChatModel.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider      string
	Model         string
	APIKey        string
	AccessKey     string
	SecretKey     string
	BaseURL       string
	Region        string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	Timeout       time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	switch c.Provider {
	case ProviderArk:
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	case ProviderOpenAI:
		return c.OpenAIAPIKey != "" || c.OpenAIBaseURL != ""
	default:
		return false
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。openai 兼容模型由 ai 包自行构建。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("LLM 凭证或模型配置缺失 (provider=%s)", c.Provider)
	}

	if c.Provider != ProviderArk {
		return nil, fmt.Errorf("provider %s 不由 ark 客户端提供", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	var timeout *time.Duration
	if c.Timeout > 0 {
		val := c.Timeout
		timeout = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Timeout:     timeout,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("LLM_TIMEOUT", 60*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderArk))
	openAIBaseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if provider == ProviderOllama {
		// Ollama 暴露 OpenAI 兼容接口，统一走 openai 客户端。
		provider = ProviderOpenAI
		if openAIBaseURL == "" {
			openAIBaseURL = "http://localhost:11434/v1"
		}
	}
	if provider != ProviderArk && provider != ProviderOpenAI {
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value: %q", provider)
	}

	return AIConfig{
		Provider:      provider,
		Model:         strings.TrimSpace(os.Getenv("LLM_MODEL")),
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: openAIBaseURL,
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		Timeout:       timeout,
	}, nil
}

// EmbeddingConfig 描述向量化模型配置。
type EmbeddingConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
}

func loadEmbeddingConfig() (EmbeddingConfig, error) {
	dims, err := parseOptionalIntEnv("EMBEDDING_DIM")
	if err != nil {
		return EmbeddingConfig{}, err
	}
	dimensions := 768
	if dims != nil {
		if *dims <= 0 {
			return EmbeddingConfig{}, fmt.Errorf("invalid EMBEDDING_DIM value: %d", *dims)
		}
		dimensions = *dims
	}

	timeout, err := parseDurationEnv("EMBEDDING_TIMEOUT", 30*time.Second)
	if err != nil {
		return EmbeddingConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", ProviderOllama))
	if provider != ProviderOllama && provider != ProviderOpenAI {
		return EmbeddingConfig{}, fmt.Errorf("invalid EMBEDDING_PROVIDER value: %q", provider)
	}

	baseURL := strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL"))
	if baseURL == "" && provider == ProviderOllama {
		baseURL = "http://localhost:11434"
	}

	apiKey := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	return EmbeddingConfig{
		Provider:   provider,
		Model:      getEnvOrDefault("EMBEDDING_MODEL", "nomic-embed-text"),
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Dimensions: dimensions,
		Timeout:    timeout,
	}, nil
}

// VectorStoreConfig 描述向量库配置。Path 为空时使用纯内存存储。
type VectorStoreConfig struct {
	Path       string
	Collection string
	Compress   bool
}

func loadVectorStoreConfig() (VectorStoreConfig, error) {
	compress, err := parseBoolEnv("VECTOR_STORE_COMPRESS", false)
	if err != nil {
		return VectorStoreConfig{}, err
	}

	return VectorStoreConfig{
		Path:       strings.TrimSpace(os.Getenv("VECTOR_STORE_PATH")),
		Collection: getEnvOrDefault("VECTOR_COLLECTION", "documents"),
		Compress:   compress,
	}, nil
}

// RetrievalConfig 控制检索、切分与历史窗口。
type RetrievalConfig struct {
	TopK          int
	HistoryDepth  int
	ChunkMode     string
	ChunkMaxWords int
}

func loadRetrievalConfig() (RetrievalConfig, error) {
	topK, err := parsePositiveIntEnv("RETRIEVAL_TOP_K", 3)
	if err != nil {
		return RetrievalConfig{}, err
	}

	historyDepth := 2
	if override, err := parseOptionalIntEnv("HISTORY_DEPTH"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil {
		if *override < 0 {
			historyDepth = 0
		} else {
			historyDepth = *override
		}
	}

	// 与原始实现一致：单块上限 = 嵌入模型上限 - 1000。
	maxWords := 1048
	if embeddingMax, err := parseOptionalIntEnv("EMBEDDING_MAX_TOKENS"); err != nil {
		return RetrievalConfig{}, err
	} else if embeddingMax != nil && *embeddingMax > 1000 {
		maxWords = *embeddingMax - 1000
	}
	if override, err := parseOptionalIntEnv("CHUNK_MAX_WORDS"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil && *override > 0 {
		maxWords = *override
	}

	return RetrievalConfig{
		TopK:          topK,
		HistoryDepth:  historyDepth,
		ChunkMode:     getEnvOrDefault("CHUNK_MODE", "auto"),
		ChunkMaxWords: maxWords,
	}, nil
}

// SpeechConfig 描述语音转写服务配置
type SpeechConfig struct {
	BaseURL  string
	Language string
	Timeout  int
	Enabled  bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 120 // 默认120秒，转写长音频较慢
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	baseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("WHISPER_URL")), "/")

	return SpeechConfig{
		BaseURL:  baseURL,
		Language: getEnvOrDefault("SPEECH_LANGUAGE", "vi"),
		Timeout:  timeoutSeconds,
		Enabled:  baseURL != "",
	}, nil
}

// WebConfig 描述网页抓取配置。
type WebConfig struct {
	Timeout       time.Duration
	MinLineLength int
	UserAgent     string
}

func loadWebConfig() (WebConfig, error) {
	timeout, err := parseDurationEnv("WEB_FETCH_TIMEOUT", 10*time.Second)
	if err != nil {
		return WebConfig{}, err
	}

	minLine, err := parsePositiveIntEnv("WEB_MIN_LINE_LENGTH", 100)
	if err != nil {
		return WebConfig{}, err
	}

	return WebConfig{
		Timeout:       timeout,
		MinLineLength: minLine,
		UserAgent:     getEnvOrDefault("WEB_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"),
	}, nil
}

// ProductConfig 描述商品搜索配置。
type ProductConfig struct {
	URL     string
	Limit   int
	Timeout time.Duration
}

func loadProductConfig() (ProductConfig, error) {
	limit, err := parsePositiveIntEnv("PRODUCT_SEARCH_LIMIT", 3)
	if err != nil {
		return ProductConfig{}, err
	}

	timeout, err := parseDurationEnv("PRODUCT_SEARCH_TIMEOUT", 15*time.Second)
	if err != nil {
		return ProductConfig{}, err
	}

	return ProductConfig{
		URL:     getEnvOrDefault("PRODUCT_SEARCH_URL", "https://websosanh.vn/search-api/get-search-product"),
		Limit:   limit,
		Timeout: timeout,
	}, nil
}

// IngestConfig 描述文档上传与入库配置。
type IngestConfig struct {
	UploadDir   string
	Watch       bool
	CatalogPath string
}

func loadIngestConfig() (IngestConfig, error) {
	watch, err := parseBoolEnv("INGEST_WATCH", false)
	if err != nil {
		return IngestConfig{}, err
	}

	return IngestConfig{
		UploadDir:   getEnvOrDefault("UPLOAD_DIR", "./data/documents"),
		Watch:       watch,
		CatalogPath: getEnvOrDefault("CATALOG_PATH", "./data/catalog.db"),
	}, nil
}

// ResolverConfig 控制单轮解析中每个外部调用的超时。
type ResolverConfig struct {
	CallTimeout time.Duration
}

func loadResolverConfig() (ResolverConfig, error) {
	timeout, err := parseDurationEnv("RESOLVER_CALL_TIMEOUT", 60*time.Second)
	if err != nil {
		return ResolverConfig{}, err
	}
	return ResolverConfig{CallTimeout: timeout}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return *val, nil
}

// parseDurationEnv 接受 Go duration ("30s") 或纯数字秒数。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
