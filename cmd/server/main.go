package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"giga-chatter/internal/analytics"
	"giga-chatter/internal/chat"
	"giga-chatter/internal/config"
	"giga-chatter/internal/history"
	"giga-chatter/internal/llm"
	"giga-chatter/internal/metrics"
	"giga-chatter/internal/scheduler"
	"giga-chatter/internal/storage"
	"giga-chatter/internal/web"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	setupLogger(cfg.LogLevel)

	var m *metrics.Metrics
	var observer llm.Observer
	if cfg.MetricsEnabled {
		m = metrics.New()
		observer = m
	}

	upstream, err := llm.NewGigaChat(llm.GigaChatConfig{
		APIKey:             cfg.APIKey,
		AuthURL:            cfg.AuthURL,
		APIURL:             cfg.APIURL,
		Scope:              cfg.Scope,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		CAFile:             cfg.CAFile,
		Timeout:            cfg.UpstreamTimeout,
	}, observer)
	if err != nil {
		log.Fatalf("failed to create gigachat client: %v", err)
	}

	tokens := llm.NewTokenCache(upstream)
	if m != nil {
		tokens.OnRefresh(m.ObserveTokenRefresh)
	}
	client := llm.NewGigaChatClient(upstream, tokens, cfg.Model)

	opts := []chat.Option{chat.WithModel(cfg.Model)}
	if m != nil {
		opts = append(opts, chat.WithMetrics(m))
	}

	var rec storage.Recorder
	if cfg.TranscriptPath != "" {
		fr, err := storage.NewFileRecorder(cfg.TranscriptPath)
		if err != nil {
			log.Printf("failed to init transcript recorder: %v", err)
		} else {
			defer fr.Close()
			rec = fr
			opts = append(opts, chat.WithRecorder(fr))
			log.Printf("📒 Writing transcript to %s", fr.Path())
		}
	}

	svc := chat.NewService(history.NewStore(cfg.SystemPrompt), client, opts...)

	var sched *scheduler.Scheduler
	if rec != nil {
		s, err := scheduler.New(cfg.ReportSchedule)
		if err != nil {
			log.Fatalf("failed to create report scheduler: %v", err)
		}
		s.SetReportFunction(analytics.DailyReport(rec, time.Now, log.Printf))
		if err := s.Start(); err != nil {
			log.Printf("failed to start report scheduler: %v", err)
		} else {
			sched = s
		}
	}

	webOpts := []web.Option{web.WithStaticDir(cfg.StaticDir)}
	if m != nil {
		webOpts = append(webOpts, web.WithMetricsHandler(m.Handler()))
	}
	server := web.NewWebServer(svc, cfg.Addr, webOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	case <-ctx.Done():
		log.Println("🔌 Shutting down...")
	}

	if sched != nil {
		sched.Stop()
	}
	if err := server.Stop(context.Background()); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
	}
}
