package sharepoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"orgdash/internal/cache"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const graphScope = "https://graph.microsoft.com/.default"

// tokenLifetimeShare is the part of the real token lifetime we keep a token
// cached for.
const tokenLifetimeShare = 0.97

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

// cacheTokenSource shares one client-credentials token between workers
// through the cache store.
type cacheTokenSource struct {
	ctx    context.Context
	conf   *clientcredentials.Config
	store  cache.Store
	key    string
	logger *slog.Logger
}

// tokenSource reuses a token in memory until it expires or is revoked.
type tokenSource struct {
	src *cacheTokenSource

	mu    sync.Mutex
	reuse oauth2.TokenSource
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	t.mu.Lock()
	reuse := t.reuse
	t.mu.Unlock()
	return reuse.Token()
}

// invalidate drops the in-memory token and the shared cache entry, so the
// next request fetches a fresh one.
func (t *tokenSource) invalidate(ctx context.Context) {
	t.mu.Lock()
	t.reuse = oauth2.ReuseTokenSource(nil, t.src)
	t.mu.Unlock()
	if t.src.store == nil {
		return
	}
	if err := t.src.store.Forget(ctx, t.src.key); err != nil {
		t.src.logger.Warn("forget rejected access token", "error", err)
	}
}

func newTokenSource(ctx context.Context, opts Options, store cache.Store, key string, logger *slog.Logger) *tokenSource {
	conf := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", opts.LoginBaseURL, opts.TenantID),
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	src := &cacheTokenSource{ctx: ctx, conf: conf, store: store, key: key, logger: logger}
	return &tokenSource{src: src, reuse: oauth2.ReuseTokenSource(nil, src)}
}

func (s *cacheTokenSource) Token() (*oauth2.Token, error) {
	if s.store != nil {
		cached, ok, err := cache.GetJSON[cachedToken](s.ctx, s.store, s.key)
		if err != nil {
			s.logger.Warn("read cached access token", "error", err)
		}
		if ok && cached.AccessToken != "" {
			return &oauth2.Token{AccessToken: cached.AccessToken, TokenType: cached.TokenType, Expiry: cached.Expiry}, nil
		}
	}

	tok, err := s.conf.Token(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrAuth)
	}

	lifetime := time.Hour
	if !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry)
	}
	ttl := time.Duration(float64(lifetime) * tokenLifetimeShare)
	expiry := time.Now().Add(ttl)
	if s.store != nil && ttl > 0 {
		if err := cache.PutJSON(s.ctx, s.store, s.key, cachedToken{AccessToken: tok.AccessToken, TokenType: tok.TokenType, Expiry: expiry}, ttl); err != nil {
			s.logger.Warn("cache access token", "error", err)
		}
	}
	return &oauth2.Token{AccessToken: tok.AccessToken, TokenType: tok.TokenType, Expiry: expiry}, nil
}

