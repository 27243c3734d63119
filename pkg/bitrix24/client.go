// Package bitrix24 provides a client for the Bitrix24 cloud REST API.
//
// Bitrix24 is a cloud CRM and collaboration platform. Its REST API exposes
// named methods (crm.deal.list, tasks.task.add, ...) reached with a single
// form-encoded POST per call, and a batch method that bundles up to 49
// sub-calls into one request.
//
// The client supports both authentication modes Bitrix24 offers:
//   - OAuth mode: a bearer access token appended to every request body plus
//     a refresh token exchanged at the Bitrix24 OAuth server. Expired tokens
//     are refreshed and the failed call is repeated transparently.
//   - Webhook mode: a static per-install key embedded in the URL path. No
//     token refresh is involved. A non-empty webhook key takes precedence
//     over OAuth fields when building request URLs.
//
// Rate-limit responses (QUERY_LIMIT_EXCEEDED) are retried after a fixed
// delay. All other remote errors are returned to the caller as data in the
// result mapping, never as Go errors; Go errors are reserved for invalid
// arguments detected before any network activity.
package bitrix24

import (
	"fmt"
	"sync"

	httpclient "github.com/crmkit/b24/pkg/http"
	"go.uber.org/zap"
)

// Wire endpoints. These are fixed by Bitrix24 and not configurable per call.
const (
	apiURL     = "https://%s/rest/%s.json"
	webhookURL = "https://%s.bitrix24.ru/rest/%d/%s/%s"

	oauthBaseURL = "https://oauth.bitrix.info"
	oauthPath    = "/oauth/token/"
)

// Bitrix24 is the main client for the Bitrix24 cloud REST API.
type Bitrix24 struct {
	config    *Config
	transport Transport
	tokens    *tokenStore
	logger    *zap.Logger
}

// tokenStore holds the mutable OAuth token pair with thread-safe access.
// Both tokens are replaced together on a successful refresh; nothing else
// mutates them.
type tokenStore struct {
	mu      sync.RWMutex
	auth    string
	refresh string
}

// Tokens is the current OAuth token pair held by a client.
type Tokens struct {
	AuthToken    string
	RefreshToken string
}

// New creates a new Bitrix24 client with a default production logger.
func New(cfg *Config) *Bitrix24 {
	logger, _ := zap.NewProduction()
	return NewWithLogger(cfg, logger)
}

// NewWithLogger creates a new Bitrix24 client with a custom logger.
func NewWithLogger(cfg *Config, logger *zap.Logger) *Bitrix24 {
	cfg.applyDefaults()
	transport := httpclient.NewClientWith(cfg.Timeout, cfg.MaxRetries, logger)
	return NewWithTransport(cfg, transport, logger)
}

// NewWithTransport creates a new Bitrix24 client with an explicit transport.
func NewWithTransport(cfg *Config, transport Transport, logger *zap.Logger) *Bitrix24 {
	cfg.applyDefaults()
	return &Bitrix24{
		config:    cfg,
		transport: transport,
		tokens: &tokenStore{
			auth:    cfg.AuthToken,
			refresh: cfg.RefreshToken,
		},
		logger: logger,
	}
}

// Tokens returns the token pair currently held by the client. After a
// successful refresh this reflects the renewed server-issued values.
func (b *Bitrix24) Tokens() Tokens {
	b.tokens.mu.RLock()
	defer b.tokens.mu.RUnlock()
	return Tokens{AuthToken: b.tokens.auth, RefreshToken: b.tokens.refresh}
}

func (b *Bitrix24) authToken() string {
	b.tokens.mu.RLock()
	defer b.tokens.mu.RUnlock()
	return b.tokens.auth
}

func (b *Bitrix24) refreshToken() string {
	b.tokens.mu.RLock()
	defer b.tokens.mu.RUnlock()
	return b.tokens.refresh
}

// methodURL selects the request URL for a method. A non-empty webhook key
// always selects the webhook form; otherwise the OAuth API form is used.
func (b *Bitrix24) methodURL(method string) string {
	if b.config.WebhookKey != "" {
		return fmt.Sprintf(webhookURL, b.config.Domain, b.config.WebhookUser, b.config.WebhookKey, method)
	}
	return fmt.Sprintf(apiURL, b.config.Domain, method)
}
