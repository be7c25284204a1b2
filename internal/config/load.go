package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables use the TRAINDECK_ prefix with
// underscores separating groups (e.g. TRAINDECK_SERVER_PORT) and take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/traindeck")

	v.SetEnvPrefix("TRAINDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; env vars alone can carry everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sensible one.
// Secrets and connection URLs deliberately have no default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Required values get an empty default so viper's AutomaticEnv can
	// resolve them during Unmarshal; validation rejects them if left empty.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.trigger_secret", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("upload.video_host_url", "")
	v.SetDefault("upload.speech_api_url", "")
	v.SetDefault("upload.speech_api_key", "")

	v.SetDefault("processor.batch_size", 20)
	v.SetDefault("processor.retry_delay_minutes", 5)
	v.SetDefault("processor.transcription_timeout_seconds", 120)
	v.SetDefault("processor.document_gen_timeout_seconds", 90)
	v.SetDefault("processor.media_upload_timeout_seconds", 300)
	v.SetDefault("processor.speech_synthesis_timeout_seconds", 60)
	v.SetDefault("processor.answer_evaluation_timeout_seconds", 45)
	v.SetDefault("processor.retention_days", 30)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("upload.chunk_size_bytes", int64(8*1024*1024))
	v.SetDefault("upload.max_file_size_bytes", int64(2*1024*1024*1024))
}
