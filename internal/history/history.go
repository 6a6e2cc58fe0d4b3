package history

import (
	"errors"
	"sync"

	"giga-chatter/internal/llm"
)

var ErrEmptyHistory = errors.New("history is empty")

// Handle идентифицирует конкретную запись истории.
// Нужен, чтобы откатывать именно свою запись, а не последнюю по позиции.
type Handle uint64

type entry struct {
	id  Handle
	msg llm.Message
}

// Snapshot: копия состояния, безопасная для чтения без блокировок.
type Snapshot struct {
	SystemPrompt string
	History      []llm.Message
}

// Store хранит системный промпт и историю единственного диалога.
// Системный промпт в историю не попадает, он добавляется только при отправке.
type Store struct {
	mu           sync.RWMutex
	systemPrompt string
	entries      []entry
	nextID       Handle
}

func NewStore(systemPrompt string) *Store {
	return &Store{systemPrompt: systemPrompt}
}

func (s *Store) AppendUser(content string) Handle {
	return s.append(llm.Message{Role: llm.RoleUser, Content: content})
}

func (s *Store) AppendAssistant(content string) Handle {
	return s.append(llm.Message{Role: llm.RoleAssistant, Content: content})
}

func (s *Store) append(msg llm.Message) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.entries = append(s.entries, entry{id: s.nextID, msg: msg})
	return s.nextID
}

// RemoveLast удаляет последнюю запись.
func (s *Store) RemoveLast() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return ErrEmptyHistory
	}
	s.entries[len(s.entries)-1] = entry{}
	s.entries = s.entries[:len(s.entries)-1]
	return nil
}

// Remove удаляет запись по идентификатору. Возвращает false, если её уже нет
// (например, историю успели очистить).
func (s *Store) Remove(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].id == h {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) SetSystemPrompt(text string, clearHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemPrompt = text
	if clearHistory {
		s.entries = nil
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{SystemPrompt: s.systemPrompt, History: s.historyLocked()}
}

// Messages собирает промпт для модели: системный промпт (если не пуст), затем вся история.
func (s *Store) Messages() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, 0, len(s.entries)+1)
	if s.systemPrompt != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt})
	}
	return append(out, s.historyLocked()...)
}

func (s *Store) historyLocked() []llm.Message {
	out := make([]llm.Message, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.msg)
	}
	return out
}
