package simplybook

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/punchamoorthee/invoicesync/internal/config"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
)

const tokenCacheKey = "user-token"

// Credentials identify the company account used for every upstream call.
type Credentials struct {
	Company  string
	User     string
	Password string
}

func (c Credentials) missing() []string {
	var names []string
	if strings.TrimSpace(c.Company) == "" {
		names = append(names, "SIMPLYBOOK_COMPANY")
	}
	if strings.TrimSpace(c.User) == "" {
		names = append(names, "SIMPLYBOOK_USER")
	}
	if c.Password == "" {
		names = append(names, "SIMPLYBOOK_PASSWORD")
	}
	return names
}

// TokenManager exchanges credentials for a user token. With a zero TTL every
// call performs a fresh exchange; otherwise a token is reused until it expires
// or is invalidated after an upstream rejection.
type TokenManager struct {
	client *Client
	creds  Credentials
	ttl    time.Duration
	cache  *gocache.Cache
}

func NewTokenManager(client *Client, cfg config.SimplyBookConfig) *TokenManager {
	m := &TokenManager{
		client: client,
		creds:  Credentials{Company: cfg.Company, User: cfg.User, Password: cfg.Password},
		ttl:    cfg.TokenCacheTTL,
	}
	if m.ttl > 0 {
		m.cache = gocache.New(m.ttl, 2*m.ttl)
	}
	return m
}

// AcquireToken returns a token valid for authenticated calls.
func (m *TokenManager) AcquireToken(ctx context.Context) (string, error) {
	if missing := m.creds.missing(); len(missing) > 0 {
		return "", ierr.NewErrorf("missing provider credentials: %s", strings.Join(missing, ", ")).
			WithHint("The scheduling provider credentials are not configured").
			Mark(ierr.ErrConfiguration)
	}

	if m.cache != nil {
		if v, ok := m.cache.Get(tokenCacheKey); ok {
			return v.(string), nil
		}
	}

	var token string
	params := []any{m.creds.Company, m.creds.User, m.creds.Password}
	if err := m.client.rpc.call(ctx, m.client.loginURL, methodGetUserToken, params, nil, &token); err != nil {
		return "", ierr.WithError(err).
			WithMessage("token exchange").
			WithHint("Could not authenticate with the scheduling provider").
			Mark(ierr.ErrUpstreamAuth)
	}
	if strings.TrimSpace(token) == "" {
		return "", ierr.NewError("token exchange returned an empty token").
			WithHint("Could not authenticate with the scheduling provider").
			Mark(ierr.ErrUpstreamAuth)
	}

	if m.cache != nil {
		m.cache.Set(tokenCacheKey, token, gocache.DefaultExpiration)
	}
	return token, nil
}

// Invalidate drops a cached token so the next AcquireToken performs an exchange.
func (m *TokenManager) Invalidate() {
	if m.cache != nil {
		m.cache.Delete(tokenCacheKey)
	}
}
