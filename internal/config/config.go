package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Processor ProcessorConfig `mapstructure:"processor" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Upload    UploadConfig    `mapstructure:"upload"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains authentication settings for both surfaces:
// the shared-secret bearer token guarding the processing trigger, and
// the JWT secret used to verify tokens minted by the identity backend.
type AuthConfig struct {
	TriggerSecret string `mapstructure:"trigger_secret" validate:"required,min=32"`
	JWTSecret     string `mapstructure:"jwt_secret"     validate:"required,min=32"`
}

// ProcessorConfig contains settings for the batch job processor.
type ProcessorConfig struct {
	BatchSize         int `mapstructure:"batch_size"          validate:"required,gt=0,lte=100"`
	RetryDelayMinutes int `mapstructure:"retry_delay_minutes" validate:"required,gt=0"`
	// Per-type executor timeouts in seconds. Generation calls legitimately
	// take tens of seconds, so each type gets its own ceiling.
	TranscriptionTimeoutS    int `mapstructure:"transcription_timeout_seconds"     validate:"gt=0"`
	DocumentGenTimeoutS      int `mapstructure:"document_gen_timeout_seconds"      validate:"gt=0"`
	MediaUploadTimeoutS      int `mapstructure:"media_upload_timeout_seconds"      validate:"gt=0"`
	SpeechSynthesisTimeoutS  int `mapstructure:"speech_synthesis_timeout_seconds"  validate:"gt=0"`
	AnswerEvaluationTimeoutS int `mapstructure:"answer_evaluation_timeout_seconds" validate:"gt=0"`
	RetentionDays            int `mapstructure:"retention_days"                    validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"      validate:"required"`
	ModelName         string `mapstructure:"model_name"          validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1"`
}

// UploadConfig contains settings for the chunked uploader and the
// external provider endpoints the executors call.
type UploadConfig struct {
	ChunkSizeBytes   int64  `mapstructure:"chunk_size_bytes"   validate:"required,gt=0"`
	MaxFileSizeBytes int64  `mapstructure:"max_file_size_bytes" validate:"required,gt=0"`
	VideoHostURL     string `mapstructure:"video_host_url"     validate:"required,url"`
	SpeechAPIURL     string `mapstructure:"speech_api_url"     validate:"required,url"`
	SpeechAPIKey     string `mapstructure:"speech_api_key"`
}
