package storage

import "time"

// Event: один ход диалога: сообщение пользователя и ответ модели
// либо ошибка, из-за которой ход был откатан.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	RequestID         string    `json:"request_id,omitempty"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response,omitempty"`
	Model             string    `json:"model,omitempty"`
	PromptTokens      int       `json:"prompt_tokens,omitempty"`
	CompletionTokens  int       `json:"completion_tokens,omitempty"`
	TotalTokens       int       `json:"total_tokens,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// Failed reports whether the turn was rolled back.
func (e Event) Failed() bool { return e.Error != "" }

// Recorder abstracts the transcript log of chat turns.
// LoadInteractions should return events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
