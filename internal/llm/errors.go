package llm

import "fmt"

// AuthError означает неудачный обмен ключа на токен доступа.
// Status равен 0, если ответ от сервера не был получен.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gigachat auth failed (status %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("gigachat auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError означает неудачный вызов chat completions.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gigachat request failed (status %d): %s", e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("gigachat request failed: %v", e.Err)
	}
	return fmt.Sprintf("gigachat request failed: %s", e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
