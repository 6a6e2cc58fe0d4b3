package llm

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenExpiryMargin: токен, истекающий раньше чем через минуту, уже не используем,
// чтобы он не протух посреди запроса.
const TokenExpiryMargin = 60 * time.Second

type TokenRefresher interface {
	RefreshToken(ctx context.Context) (*oauth2.Token, error)
}

// TokenCache хранит текущий токен доступа и обновляет его по необходимости.
// Обновление выполняется под мьютексом, поэтому одновременные запросы
// после истечения токена приводят ровно к одному обмену.
type TokenCache struct {
	mu        sync.Mutex
	source    TokenRefresher
	token     *oauth2.Token
	now       func() time.Time
	onRefresh func(err error)
}

func NewTokenCache(source TokenRefresher) *TokenCache {
	return &TokenCache{source: source, now: time.Now}
}

// OnRefresh задаёт хук, вызываемый после каждой попытки обновления.
func (c *TokenCache) OnRefresh(f func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefresh = f
}

// Token возвращает действующий токен, при необходимости запрашивая новый.
func (c *TokenCache) Token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.validLocked() {
		return c.token, nil
	}

	tok, err := c.source.RefreshToken(ctx)
	if c.onRefresh != nil {
		c.onRefresh(err)
	}
	if err != nil {
		var aerr *AuthError
		if !errors.As(err, &aerr) {
			err = &AuthError{Err: err}
		}
		log.Printf("❌ GigaChat token refresh failed: %v", err)
		return nil, err
	}
	c.token = tok
	log.Printf("🔑 GigaChat token refreshed, expires at %s", tok.Expiry.UTC().Format(time.RFC3339))
	return tok, nil
}

// Invalidate сбрасывает закэшированный токен.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}

func (c *TokenCache) validLocked() bool {
	if c.token == nil || c.token.AccessToken == "" {
		return false
	}
	return c.now().Before(c.token.Expiry.Add(-TokenExpiryMargin))
}
