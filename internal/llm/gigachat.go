package llm

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2"
)

// Без expires_at в ответе токен считается живым полчаса.
const defaultTokenTTL = 30 * time.Minute

const maxAuthBody = 1 << 20

const (
	OperationAuth = "auth"
	OperationChat = "chat"
)

type GigaChatConfig struct {
	APIKey  string
	AuthURL string
	APIURL  string
	Scope   string

	// InsecureSkipVerify отключает проверку сертификата GigaChat.
	// У Сбера сертификаты Минцифры, которых нет в системном хранилище,
	// поэтому предпочтительнее CAFile с корневым сертификатом.
	InsecureSkipVerify bool
	CAFile             string

	Timeout time.Duration
}

// Observer получает статус и длительность каждого исходящего запроса.
// status равен 0, если ответ не был получен.
type Observer interface {
	ObserveUpstream(operation string, status int, d time.Duration)
}

// GigaChat выполняет два исходящих вызова: обмен ключа на токен и chat completions.
type GigaChat struct {
	cfg        GigaChatConfig
	httpClient *http.Client
	observer   Observer
	now        func() time.Time
}

func NewGigaChat(cfg GigaChatConfig, observer Observer) (*GigaChat, error) {
	tlsCfg, err := newTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &GigaChat{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		observer:   observer,
		now:        time.Now,
	}, nil
}

func newTLSConfig(cfg GigaChatConfig) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tc.RootCAs = pool
	}
	if cfg.InsecureSkipVerify {
		log.Printf("⚠️ TLS certificate verification towards GigaChat is DISABLED (GIGACHAT_INSECURE_SKIP_VERIFY)")
		tc.InsecureSkipVerify = true //nolint:gosec // включается только явной настройкой
	}
	return tc, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// миллисекунды с начала эпохи
	ExpiresAt int64 `json:"expires_at"`
}

// RefreshToken обменивает ключ авторизации на токен доступа.
func (g *GigaChat) RefreshToken(ctx context.Context) (*oauth2.Token, error) {
	form := url.Values{"scope": {g.cfg.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.observe(OperationAuth, 0, start)
		return nil, &AuthError{Err: err}
	}
	defer resp.Body.Close()
	g.observe(OperationAuth, resp.StatusCode, start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBody))
	if err != nil {
		return nil, &AuthError{Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &AuthError{Status: resp.StatusCode, Body: "invalid token response", Err: err}
	}
	if tr.AccessToken == "" {
		return nil, &AuthError{Status: resp.StatusCode, Body: "token response has no access_token"}
	}

	expiry := g.now().Add(defaultTokenTTL)
	if tr.ExpiresAt > 0 {
		expiry = time.UnixMilli(tr.ExpiresAt)
	}
	return &oauth2.Token{AccessToken: tr.AccessToken, TokenType: "Bearer", Expiry: expiry}, nil
}

// SendChat отправляет весь список сообщений и возвращает первый вариант ответа.
func (g *GigaChat) SendChat(ctx context.Context, token *oauth2.Token, model string, messages []Message) (Response, error) {
	if token == nil || token.AccessToken == "" {
		return Response{}, &UpstreamError{Body: "missing access token"}
	}

	config := openai.DefaultConfig(token.AccessToken)
	config.BaseURL = strings.TrimRight(g.cfg.APIURL, "/")
	config.HTTPClient = g.httpClient
	client := openai.NewClientWithConfig(config)

	// go-openai опускает пустой content, а GigaChat такое сообщение не примет
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for i, m := range messages {
		if m.Content == "" {
			return Response{}, &UpstreamError{Body: fmt.Sprintf("message %d (%s) has empty content", i, m.Role)}
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: oaMsgs,
	})
	if err != nil {
		uerr := toUpstreamError(err)
		g.observe(OperationChat, uerr.Status, start)
		return Response{}, uerr
	}
	g.observe(OperationChat, http.StatusOK, start)

	if len(resp.Choices) == 0 {
		return Response{}, &UpstreamError{Body: "response contains no choices"}
	}
	if resp.Choices[0].Message.Content == "" {
		return Response{}, &UpstreamError{Status: http.StatusOK, Body: "response contains empty content"}
	}

	out := Response{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
	}
	if resp.Model != "" {
		out.Model = resp.Model
	}
	out.PromptTokens = resp.Usage.PromptTokens
	out.CompletionTokens = resp.Usage.CompletionTokens
	out.TotalTokens = resp.Usage.TotalTokens
	return out, nil
}

func toUpstreamError(err error) *UpstreamError {
	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &reqErr):
		body := strings.TrimSpace(string(reqErr.Body))
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &UpstreamError{Status: reqErr.HTTPStatusCode, Body: body, Err: err}
	case errors.As(err, &apiErr):
		return &UpstreamError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	default:
		return &UpstreamError{Err: err}
	}
}

func (g *GigaChat) observe(operation string, status int, start time.Time) {
	if g.observer == nil {
		return
	}
	g.observer.ObserveUpstream(operation, status, time.Since(start))
}

type chatSender interface {
	SendChat(ctx context.Context, token *oauth2.Token, model string, messages []Message) (Response, error)
}

// GigaChatClient реализует Client: берёт токен из кэша и отправляет диалог.
type GigaChatClient struct {
	sender chatSender
	tokens *TokenCache
	model  string
}

func NewGigaChatClient(upstream *GigaChat, tokens *TokenCache, model string) *GigaChatClient {
	return &GigaChatClient{sender: upstream, tokens: tokens, model: model}
}

func (c *GigaChatClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Response{}, err
	}
	resp, err := c.sender.SendChat(ctx, token, c.model, messages)
	if err != nil {
		// Отозванный токен: следующий запрос получит новый.
		var uerr *UpstreamError
		if errors.As(err, &uerr) && uerr.Status == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		return Response{}, err
	}
	return resp, nil
}
