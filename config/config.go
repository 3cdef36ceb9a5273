package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ServiceVersion is reported on /health and the root descriptor
const ServiceVersion = "0.4.0"

// LoadENV loads variables from .env unless GO_ENV says otherwise
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		// Missing .env is fine outside development setups
		if err := godotenv.Load(); err != nil && goEnv == "development" {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV string
	PORT   int

	// Job store (Redis)
	STORE_URL string

	// Vector store (Qdrant gRPC)
	VECTOR_STORE_URL string
	COLLECTION_NAME  string

	// Embedding provider
	EMBEDDING_PROVIDER string // openai | local | mock
	EMBEDDING_MODEL    string
	EMBEDDING_URL      string
	OPENAI_API_KEY     string

	// LLM provider
	LLM_URL         string
	LLM_MODEL       string
	LLM_TEMPERATURE float64
	LLM_MAX_TOKENS  int

	// Rerank
	RERANK_ENABLED bool
	RERANK_MODEL   string
	RERANK_URL     string

	// Observability
	OTEL_EXPORTER_OTLP_ENDPOINT string
	OTEL_SERVICE_NAME           string
	OTEL_SAMPLE_RATE            float64
	LOG_STRUCTURED              bool

	// Jobs
	MAX_RETRIES         int
	MAX_CONCURRENT_JOBS int
	JOB_TIMEOUT_SECONDS int
	HEARTBEAT_INTERVAL  time.Duration

	// Chunking
	CHUNK_SIZE    int
	CHUNK_OVERLAP int

	// Query cache
	QUERY_CACHE_SIZE int
	QUERY_CACHE_TTL  time.Duration

	// HTTP limits
	RATE_LIMIT_REQUESTS int
	RATE_LIMIT_WINDOW   time.Duration
	MAX_REQUEST_SIZE    int
	REQUEST_TIMEOUT     time.Duration
	ALLOWED_HOSTS       string
	CORS_ORIGINS        string

	// Bearer token gate on the job stream route (disabled when empty)
	STREAM_TOKEN_SECRET string

	// Raw-document archive (S3-compatible; disabled when bucket empty)
	ARCHIVE_BUCKET     string
	ARCHIVE_REGION     string
	ARCHIVE_ENDPOINT   string
	ARCHIVE_ACCESS_KEY string
	ARCHIVE_SECRET_KEY string
}

func Get() (*EnvironmentVariable, error) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8000
	}

	envVariables := &EnvironmentVariable{
		GO_ENV: os.Getenv("GO_ENV"),
		PORT:   port,

		STORE_URL: getEnvString("STORE_URL", "redis://localhost:6379/0"),

		VECTOR_STORE_URL: getEnvString("VECTOR_STORE_URL", "localhost:6334"),
		COLLECTION_NAME:  getEnvString("COLLECTION_NAME", "documents"),

		EMBEDDING_PROVIDER: getEnvString("EMBEDDING_PROVIDER", "mock"),
		EMBEDDING_MODEL:    getEnvString("EMBEDDING_MODEL", "text-embedding-3-small"),
		EMBEDDING_URL:      getEnvString("EMBEDDING_URL", "https://api.openai.com"),
		OPENAI_API_KEY:     os.Getenv("OPENAI_API_KEY"),

		LLM_URL:         getEnvString("LLM_URL", "https://api.openai.com"),
		LLM_MODEL:       getEnvString("LLM_MODEL", "gpt-4o-mini"),
		LLM_TEMPERATURE: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLM_MAX_TOKENS:  getEnvInt("LLM_MAX_TOKENS", 1024),

		RERANK_ENABLED: getEnvBool("RERANK_ENABLED", false),
		RERANK_MODEL:   getEnvString("RERANK_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
		RERANK_URL:     os.Getenv("RERANK_URL"),

		OTEL_EXPORTER_OTLP_ENDPOINT: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTEL_SERVICE_NAME:           getEnvString("OTEL_SERVICE_NAME", "docuquery"),
		OTEL_SAMPLE_RATE:            getEnvFloat("OTEL_SAMPLE_RATE", 1.0),
		LOG_STRUCTURED:              getEnvBool("LOG_STRUCTURED", false),

		MAX_RETRIES:         getEnvInt("MAX_RETRIES", 3),
		MAX_CONCURRENT_JOBS: getEnvInt("MAX_CONCURRENT_JOBS", 10),
		JOB_TIMEOUT_SECONDS: getEnvInt("JOB_TIMEOUT_SECONDS", 300),
		HEARTBEAT_INTERVAL:  time.Duration(getEnvInt("HEARTBEAT_INTERVAL", 30)) * time.Second,

		CHUNK_SIZE:    getEnvInt("CHUNK_SIZE", 800),
		CHUNK_OVERLAP: getEnvInt("CHUNK_OVERLAP", 200),

		QUERY_CACHE_SIZE: getEnvInt("QUERY_CACHE_SIZE", 1000),
		QUERY_CACHE_TTL:  time.Duration(getEnvInt("QUERY_CACHE_TTL", 300)) * time.Second,

		RATE_LIMIT_REQUESTS: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RATE_LIMIT_WINDOW:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
		MAX_REQUEST_SIZE:    getEnvInt("MAX_REQUEST_SIZE", 10*1024*1024),
		REQUEST_TIMEOUT:     time.Duration(getEnvInt("REQUEST_TIMEOUT", 30)) * time.Second,
		ALLOWED_HOSTS:       getEnvString("ALLOWED_HOSTS", "*"),
		CORS_ORIGINS:        getEnvString("CORS_ORIGINS", "*"),

		STREAM_TOKEN_SECRET: os.Getenv("STREAM_TOKEN_SECRET"),

		ARCHIVE_BUCKET:     os.Getenv("ARCHIVE_BUCKET"),
		ARCHIVE_REGION:     getEnvString("ARCHIVE_REGION", "us-east-1"),
		ARCHIVE_ENDPOINT:   os.Getenv("ARCHIVE_ENDPOINT"),
		ARCHIVE_ACCESS_KEY: os.Getenv("ARCHIVE_ACCESS_KEY"),
		ARCHIVE_SECRET_KEY: os.Getenv("ARCHIVE_SECRET_KEY"),
	}

	return envVariables, nil
}

// getEnvString returns a string environment variable or a default value
func getEnvString(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

// getEnvFloat returns a float64 environment variable or a default value
func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	floatVal, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return floatVal
}

// getEnvBool returns a boolean environment variable or a default value
func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return boolVal
}
