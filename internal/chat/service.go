// Package chat связывает историю диалога с языковой моделью.
package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"giga-chatter/internal/history"
	"giga-chatter/internal/llm"
	"giga-chatter/internal/storage"
)

// Metrics: то, что сервис сообщает о каждом ходе.
type Metrics interface {
	ObserveChatTurn(err error)
	SetHistorySize(n int)
}

// Service ведёт единственный диалог. Изменяющие операции (Chat,
// SetSystemPrompt, ClearHistory) выполняются по очереди и ждут завершения
// хода, который уже ушёл в модель. State не блокируется.
type Service struct {
	mu       sync.Mutex
	store    *history.Store
	llm      llm.Client
	recorder storage.Recorder
	metrics  Metrics
	model    string
	now      func() time.Time
}

type Option func(*Service)

func WithRecorder(r storage.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithModel задаёт имя модели для журнала, если ответ его не содержит.
func WithModel(model string) Option {
	return func(s *Service) { s.model = model }
}

func NewService(store *history.Store, client llm.Client, opts ...Option) *Service {
	s := &Service{store: store, llm: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State возвращает копию текущего состояния. Не ждёт выполняющихся ходов.
func (s *Service) State() history.Snapshot {
	return s.store.Snapshot()
}

// Chat выполняет один ход диалога. При ошибке модели история остаётся
// такой же, какой была до вызова.
func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := s.store.AppendUser(message)
	resp, err := s.llm.Generate(ctx, s.store.Messages())
	if err != nil {
		s.store.Remove(handle)
		log.Printf("❌ Chat turn failed, history rolled back: %v", err)
		s.report(ctx, message, llm.Response{}, err)
		return "", err
	}

	s.store.AppendAssistant(resp.Content)
	s.report(ctx, message, resp, nil)
	return resp.Content, nil
}

// SetSystemPrompt заменяет системный промпт и при clearHistory очищает историю.
func (s *Service) SetSystemPrompt(prompt string, clearHistory bool) history.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetSystemPrompt(prompt, clearHistory)
	log.Printf("📝 System prompt updated (clear_history=%t)", clearHistory)
	s.observeSize()
	return s.store.Snapshot()
}

func (s *Service) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Clear()
	log.Printf("🧹 History cleared")
	s.observeSize()
}

func (s *Service) report(ctx context.Context, message string, resp llm.Response, err error) {
	if s.metrics != nil {
		s.metrics.ObserveChatTurn(err)
	}
	s.observeSize()

	if s.recorder == nil {
		return
	}
	ev := storage.Event{
		Timestamp:         s.now().UTC(),
		RequestID:         RequestIDFromContext(ctx),
		UserMessage:       message,
		AssistantResponse: resp.Content,
		Model:             resp.Model,
		PromptTokens:      resp.PromptTokens,
		CompletionTokens:  resp.CompletionTokens,
		TotalTokens:       resp.TotalTokens,
	}
	if ev.Model == "" {
		ev.Model = s.model
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if rerr := s.recorder.AppendInteraction(ev); rerr != nil {
		log.Printf("⚠️ Failed to record interaction: %v", rerr)
	}
}

func (s *Service) observeSize() {
	if s.metrics != nil {
		s.metrics.SetHistorySize(s.store.Len())
	}
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
