// Package web отдаёт HTTP API чата и статический фронтенд.
package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"giga-chatter/internal/chat"
)

// WebServer обслуживает /api/*, /healthz, /metrics и статику.
type WebServer struct {
	chat      *chat.Service
	metrics   http.Handler
	staticDir string
	addr      string
	validate  *validator.Validate
	mu        sync.Mutex
	server    *http.Server
	startTime time.Time
}

type Option func(*WebServer)

// WithMetricsHandler подключает GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(ws *WebServer) { ws.metrics = h }
}

// WithStaticDir раздаёт файлы из каталога на /, если каталог существует.
func WithStaticDir(dir string) Option {
	return func(ws *WebServer) { ws.staticDir = dir }
}

func NewWebServer(svc *chat.Service, addr string, opts ...Option) *WebServer {
	ws := &WebServer{
		chat:      svc,
		addr:      addr,
		validate:  newValidator(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// newValidator называет поля в ошибках так же, как они называются в JSON.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler собирает маршруты и middleware.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", ws.handleState)
	mux.HandleFunc("POST /api/chat", ws.handleChat)
	mux.HandleFunc("PUT /api/system-prompt", ws.handleSystemPrompt)
	mux.HandleFunc("DELETE /api/history", ws.handleClearHistory)
	mux.HandleFunc("GET /healthz", ws.handleHealth)
	if ws.metrics != nil {
		mux.Handle("GET /metrics", ws.metrics)
	}

	// Статика регистрируется последней и ловит всё, что не совпало выше
	if ws.staticDir != "" {
		if info, err := os.Stat(ws.staticDir); err == nil && info.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(ws.staticDir)))
		} else {
			log.Printf("⚠️ Static directory %q not found, frontend is not served", ws.staticDir)
		}
	}

	return withMiddleware(mux)
}

// withMiddleware: recovery внутри журнала, паника попадает в лог как 500.
func withMiddleware(h http.Handler) http.Handler {
	h = recoveryMiddleware(h)
	h = loggingMiddleware(h)
	h = corsMiddleware(h)
	h = requestIDMiddleware(h)
	return h
}

// Start блокируется до остановки сервера.
func (ws *WebServer) Start() error {
	srv := &http.Server{
		Addr:              ws.addr,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ws.mu.Lock()
	ws.server = srv
	ws.mu.Unlock()

	log.Printf("🌐 Starting chat server on %s", ws.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WebServer) Stop(ctx context.Context) error {
	ws.mu.Lock()
	srv := ws.server
	ws.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
