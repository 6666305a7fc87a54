package llm

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Morwran/yagpt"
)

// iamRefreshMargin renews the IAM token this long before it expires.
const iamRefreshMargin = 10 * time.Minute

type iamIssuer interface {
	CreateWithCtx(ctx context.Context) (*yagpt.IamTokenResponse, error)
}

type yaCompleter interface {
	CompletionWithCtx(ctx context.Context, iamTok string, m []yagpt.Message) (*yagpt.CompletionResponse, error)
}

// YandexClient summarizes with YandexGPT Lite. The model is fixed by the
// yagpt library; IAM tokens (valid ~12h) are renewed on demand.
type YandexClient struct {
	iam iamIssuer
	ya  yaCompleter
	now func() time.Time

	mu        sync.Mutex
	iamToken  string
	expiresAt time.Time
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}
	c := &YandexClient{iam: iam, ya: ya, now: time.Now}
	// fail fast on a bad OAuth token
	if _, err := c.token(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *YandexClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.iamToken != "" && c.now().Before(c.expiresAt.Add(-iamRefreshMargin)) {
		return c.iamToken, nil
	}
	resp, err := c.iam.CreateWithCtx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create iam token: %w", err)
	}
	c.iamToken, c.expiresAt = resp.IamToken, resp.ExpiresAt
	log.Printf("🔑 yandex IAM token issued, valid until %s", resp.ExpiresAt.UTC().Format(time.RFC3339))
	return c.iamToken, nil
}

func (c *YandexClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return Response{}, err
	}
	yaMsgs := make([]yagpt.Message, 0, len(messages))
	for _, m := range messages {
		yaMsgs = append(yaMsgs, yagpt.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := c.ya.CompletionWithCtx(ctx, tok, yaMsgs)
	if err != nil {
		return Response{}, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return Response{}, fmt.Errorf("yagpt returned empty response")
	}
	model := yagpt.YaModelLite
	if resp.ModelVersion != "" {
		model += "@" + resp.ModelVersion
	}
	return Response{
		Content:          resp.Alternatives[0].Message.Content,
		Model:            model,
		PromptTokens:     int(resp.Usage.InputTextTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}, nil
}
