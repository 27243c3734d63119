package bitrix24

import (
	"context"
	"encoding/json"
	"fmt"

	httpclient "github.com/crmkit/b24/pkg/http"
	"go.uber.org/zap"
)

type oauthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokens exchanges the refresh token for a new token pair at the
// Bitrix24 OAuth server. On success the client's stored tokens are replaced
// and ok is true. On failure ok is false, the returned result carries the
// error, and the stored tokens are left unchanged. The operation itself
// never retries; Call decides what to do with a failure.
func (b *Bitrix24) RefreshTokens(ctx context.Context) (Result, bool) {
	endpoint, err := httpclient.BuildURL(oauthBaseURL, oauthPath, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     b.config.ClientID,
		"client_secret": b.config.ClientSecret,
		"refresh_token": b.refreshToken(),
	})
	if err != nil {
		return Result{"error": fmt.Sprintf("Error on decode oauth response [%v]", err)}, false
	}

	resp, err := b.transport.PostForm(ctx, endpoint, "")
	var raw []byte
	if resp != nil {
		raw = resp.Body
	}
	if err != nil {
		return Result{"error": fmt.Sprintf("Error on decode oauth response [%s]", raw)}, false
	}

	var payload oauthResponse
	if err := json.Unmarshal(raw, &payload); err != nil || payload.AccessToken == "" || payload.RefreshToken == "" {
		return Result{"error": fmt.Sprintf("Error on decode oauth response [%s]", raw)}, false
	}

	b.tokens.mu.Lock()
	b.tokens.auth = payload.AccessToken
	b.tokens.refresh = payload.RefreshToken
	b.tokens.mu.Unlock()

	b.logger.Info("Refreshed access tokens", zap.String("domain", b.config.Domain))
	return nil, true
}
