package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	calls  atomic.Int32
	ttl    time.Duration
	now    func() time.Time
	err    error
	delay  time.Duration
	prefix string
}

func (f *fakeRefresher) RefreshToken(ctx context.Context) (*oauth2.Token, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{
		AccessToken: f.prefix + string(rune('0'+n)),
		Expiry:      f.now().Add(f.ttl),
	}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(ttl time.Duration) (*TokenCache, *fakeRefresher, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	src := &fakeRefresher{ttl: ttl, now: clock.Now, prefix: "tok-"}
	cache := NewTokenCache(src)
	cache.now = clock.Now
	return cache, src, clock
}

func TestTokenCacheReusesValidToken(t *testing.T) {
	cache, src, clock := newTestCache(30 * time.Minute)

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, first.AccessToken, second.AccessToken)
}

func TestTokenCacheRefreshesInsideMargin(t *testing.T) {
	cache, src, clock := newTestCache(30 * time.Minute)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	// 30 секунд до истечения: меньше запаса в минуту
	clock.Advance(29*time.Minute + 30*time.Second)
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, "tok-2", tok.AccessToken)

	// новый токен снова переиспользуется
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTokenCacheMarginBoundary(t *testing.T) {
	cache, src, clock := newTestCache(30 * time.Minute)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(29*time.Minute - time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load(), "61s before expiry is still valid")

	clock.Advance(time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "exactly 60s before expiry is not valid")
}

func TestTokenCacheRefreshesAfterExpiry(t *testing.T) {
	cache, src, clock := newTestCache(30 * time.Minute)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTokenCacheWrapsRefreshErrors(t *testing.T) {
	cache, src, _ := newTestCache(30 * time.Minute)
	src.err = errors.New("connection refused")

	var hookErr error
	cache.OnRefresh(func(err error) { hookErr = err })

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.ErrorIs(t, err, src.err)
	assert.Equal(t, src.err, hookErr)

	// неудача не кэшируется
	_, _ = cache.Token(context.Background())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTokenCacheConcurrentCallersShareOneRefresh(t *testing.T) {
	cache, src, _ := newTestCache(30 * time.Minute)
	src.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Token(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestTokenCacheInvalidate(t *testing.T) {
	cache, src, _ := newTestCache(30 * time.Minute)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}
