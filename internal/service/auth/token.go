package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/zhouzirui/emi-live/backend/internal/config"
)

// CalendarReadonlyScope 只读日历权限。
const CalendarReadonlyScope = "https://www.googleapis.com/auth/calendar.readonly"

// ErrNoCredential 当前没有可用的访问令牌。
var ErrNoCredential = errors.New("no access token available")

// TokenProvider 提供 Bearer 访问令牌。
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// SourceProvider 基于 oauth2.TokenSource，令牌有效期内复用。
type SourceProvider struct {
	source oauth2.TokenSource
}

// NewSourceProvider 包装任意 TokenSource。
func NewSourceProvider(src oauth2.TokenSource) *SourceProvider {
	return &SourceProvider{source: oauth2.ReuseTokenSource(nil, src)}
}

// NewStaticProvider 固定令牌，通常来自 GOOGLE_ACCESS_TOKEN。
func NewStaticProvider(token string) *SourceProvider {
	return NewSourceProvider(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// NewRefreshProvider 使用 refresh token 向 Google 换取访问令牌。
func NewRefreshProvider(ctx context.Context, clientID, clientSecret, refreshToken string) *SourceProvider {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{CalendarReadonlyScope},
	}
	return NewSourceProvider(cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}))
}

func (p *SourceProvider) AccessToken(_ context.Context) (string, error) {
	token, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("obtain access token: %w", err)
	}
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return "", ErrNoCredential
	}
	return token.AccessToken, nil
}

// Anonymous 未授权时使用，总是返回 ErrNoCredential。
type Anonymous struct{}

func (Anonymous) AccessToken(context.Context) (string, error) {
	return "", ErrNoCredential
}

// FromConfig 优先使用 refresh token，其次静态令牌，都没有时返回 Anonymous。
func FromConfig(ctx context.Context, cfg config.CalendarConfig) TokenProvider {
	switch {
	case cfg.HasRefreshCredentials():
		return NewRefreshProvider(ctx, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken)
	case cfg.AccessToken != "":
		return NewStaticProvider(cfg.AccessToken)
	default:
		return Anonymous{}
	}
}
