package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v6"

	"giga-chatter/internal/scheduler"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env.Options{Environment: map[string]string{}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthURL != "https://ngw.devices.sberbank.ru:9443/api/v2/oauth" {
		t.Fatalf("unexpected auth url: %s", cfg.AuthURL)
	}
	if cfg.APIURL != "https://gigachat.devices.sberbank.ru/api/v1" {
		t.Fatalf("unexpected api url: %s", cfg.APIURL)
	}
	if cfg.Model != "GigaChat-2-Max" || cfg.Scope != "GIGACHAT_API_CORP" {
		t.Fatalf("unexpected model/scope: %s %s", cfg.Model, cfg.Scope)
	}
	if cfg.SystemPrompt != "Ты полезный ассистент." {
		t.Fatalf("unexpected system prompt: %q", cfg.SystemPrompt)
	}
	if cfg.ReportSchedule != scheduler.DefaultReportSchedule {
		t.Fatalf("unexpected report schedule: %q", cfg.ReportSchedule)
	}
	if cfg.LogLevel != "info" || cfg.StaticDir != "frontend" || cfg.TranscriptPath != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.InsecureSkipVerify {
		t.Fatalf("tls verification must be on by default")
	}
	if cfg.UpstreamTimeout != 60*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.UpstreamTimeout)
	}
	if cfg.Addr != ":8000" || !cfg.MetricsEnabled {
		t.Fatalf("unexpected http defaults: %+v", cfg)
	}
	if cfg.APIKey != "" {
		t.Fatalf("api key must default to empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	ca := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(ca, []byte("pem"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(env.Options{Environment: map[string]string{
		"GIGACHAT_API_KEY":              "secret",
		"GIGACHAT_MODEL":                "GigaChat-Pro",
		"GIGACHAT_INSECURE_SKIP_VERIFY": "true",
		"GIGACHAT_CA_FILE":              ca,
		"SYSTEM_PROMPT":                 "Отвечай кратко.",
		"HTTP_ADDR":                     "127.0.0.1:9090",
		"UPSTREAM_TIMEOUT":              "5s",
		"LOG_LEVEL":                     "debug",
	}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "secret" || cfg.Model != "GigaChat-Pro" || !cfg.InsecureSkipVerify {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CAFile != ca || cfg.SystemPrompt != "Отвечай кратко." {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Addr != "127.0.0.1:9090" || cfg.UpstreamTimeout != 5*time.Second || cfg.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"bad log level": {"LOG_LEVEL": "trace"},
		"bad auth url":  {"GIGACHAT_AUTH_URL": "not a url"},
		"bad addr":      {"HTTP_ADDR": "8000"},
		"missing ca":    {"GIGACHAT_CA_FILE": "/definitely/missing.pem"},
		"empty model":   {"GIGACHAT_MODEL": ""},
	}
	for name, envs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(env.Options{Environment: envs})
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestLoadBadDuration(t *testing.T) {
	if _, err := Load(env.Options{Environment: map[string]string{"UPSTREAM_TIMEOUT": "soon"}}); err == nil {
		t.Fatalf("expected parse error")
	}
}
