package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr  string
	DBDSN     string
	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	// Page fetching / extraction
	PageUserAgent string
	LocaleHL      string
	LocaleGL      string
	RelayTimeout  time.Duration

	// AI provider
	AIProvider    string
	OpenAIBaseURL string
	OpenAIModel   string
	OllamaBaseURL string
	OllamaModel   string
}

func Load() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8085"
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "tubechat.db"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	sessionTTL := 12 * time.Hour
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			sessionTTL = d
		}
	}

	relayTimeout := 60 * time.Second
	if v := os.Getenv("RELAY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			relayTimeout = d
		}
	}

	ua := os.Getenv("PAGE_USER_AGENT")
	if ua == "" {
		ua = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	hl := os.Getenv("LOCALE_HL")
	if hl == "" {
		hl = "en"
	}
	gl := os.Getenv("LOCALE_GL")
	if gl == "" {
		gl = "US"
	}

	aiProvider := os.Getenv("AI_PROVIDER")
	if aiProvider == "" {
		aiProvider = "openai"
	}

	openAIBaseURL := os.Getenv("OPENAI_BASE_URL")
	if openAIBaseURL == "" {
		openAIBaseURL = "https://api.openai.com/v1"
	}
	openAIModel := os.Getenv("OPENAI_MODEL")
	if openAIModel == "" {
		openAIModel = "gpt-3.5-turbo"
	}

	ollamaBaseURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaBaseURL == "" {
		ollamaBaseURL = "http://localhost:11434"
	}
	ollamaModel := os.Getenv("OLLAMA_MODEL")
	if ollamaModel == "" {
		ollamaModel = "llama3:latest"
	}

	return Config{
		HTTPAddr:  addr,
		DBDSN:     dsn,
		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		SessionTTL:    sessionTTL,

		PageUserAgent: ua,
		LocaleHL:      hl,
		LocaleGL:      gl,
		RelayTimeout:  relayTimeout,

		AIProvider:    aiProvider,
		OpenAIBaseURL: openAIBaseURL,
		OpenAIModel:   openAIModel,
		OllamaBaseURL: ollamaBaseURL,
		OllamaModel:   ollamaModel,
	}
}
