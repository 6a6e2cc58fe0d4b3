package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	// GigaChat, по умолчанию боевые адреса
	APIKey             string `env:"GIGACHAT_API_KEY"`
	AuthURL            string `env:"GIGACHAT_AUTH_URL" envDefault:"https://ngw.devices.sberbank.ru:9443/api/v2/oauth" validate:"required,url"`
	APIURL             string `env:"GIGACHAT_API_URL" envDefault:"https://gigachat.devices.sberbank.ru/api/v1" validate:"required,url"`
	Scope              string `env:"GIGACHAT_SCOPE" envDefault:"GIGACHAT_API_CORP" validate:"required"`
	Model              string `env:"GIGACHAT_MODEL" envDefault:"GigaChat-2-Max" validate:"required"`
	InsecureSkipVerify bool   `env:"GIGACHAT_INSECURE_SKIP_VERIFY" envDefault:"false"`
	CAFile             string `env:"GIGACHAT_CA_FILE" validate:"omitempty,file"`

	// Prompts
	SystemPrompt string `env:"SYSTEM_PROMPT" envDefault:"Ты полезный ассистент."`

	// HTTP
	Addr            string        `env:"HTTP_ADDR" envDefault:":8000" validate:"required,hostname_port"`
	StaticDir       string        `env:"STATIC_DIR" envDefault:"frontend"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s" validate:"gte=0"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Transcript & reports
	TranscriptPath string `env:"TRANSCRIPT_PATH"`
	ReportSchedule string `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load читает конфигурацию из окружения и проверяет её.
// Опции env.Options позволяют подменить окружение в тестах.
func Load(opts ...env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg, opts...); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New как Load, но завершает процесс при ошибке.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	if cfg.APIKey == "" {
		log.Printf("⚠️ GIGACHAT_API_KEY is empty, upstream calls will be rejected")
	}
	return cfg
}

// ValidationError описывает первое нарушенное правило.
type ValidationError struct {
	Field string
	Tag   string
	Value interface{}
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config field %s failed %q validation (value %v)", e.Field, e.Tag, e.Value)
}

func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return ValidationError{Field: e.Field(), Tag: e.Tag(), Value: e.Value()}
		}
		return err
	}
	return nil
}
