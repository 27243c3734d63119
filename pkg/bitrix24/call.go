package bitrix24

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	httpclient "github.com/crmkit/b24/pkg/http"
	"go.uber.org/zap"
)

// Remote error codes the client recovers from automatically.
const (
	errNoAuthFound  = "NO_AUTH_FOUND"
	errExpiredToken = "expired_token"
	errQueryLimit   = "QUERY_LIMIT_EXCEEDED"
)

// Call invokes a named REST method. Up to four ordered parameter slots may
// be supplied; when the client holds a non-empty auth token, an implicit
// trailing auth slot is appended to the body.
//
// Expired-token responses trigger a token refresh and a repeat of the same
// call; rate-limit responses trigger a fixed delay and a repeat. Both loops
// run until they succeed unless capped via Config. Every other failure
// (decode failures, read timeouts, exhausted connection retries, remote
// errors) is reported through the result's "error" field, never as a Go
// error.
func (b *Bitrix24) Call(ctx context.Context, method string, params ...Params) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if method == "" {
		return nil, ErrEmptyMethod
	}
	if len(params) > 4 {
		return nil, ErrTooManyParams
	}

	if method == "batch" {
		if err := b.prepareBatchSlot(params); err != nil {
			return nil, err
		}
	}

	authAttempts := 0
	rateAttempts := 0
	for {
		// The body is rebuilt on every attempt so a retried call picks up
		// freshly refreshed tokens.
		body := b.encodeParams(params)
		result := b.post(ctx, b.methodURL(method), body)

		switch result.ErrorCode() {
		case errNoAuthFound, errExpiredToken:
			if b.config.MaxAuthRetries > 0 && authAttempts >= b.config.MaxAuthRetries {
				return result, nil
			}
			authAttempts++
			b.logger.Info("Auth token rejected, refreshing",
				zap.String("method", method),
				zap.String("code", result.ErrorCode()))
			if failure, ok := b.RefreshTokens(ctx); !ok {
				return failure, nil
			}

		case errQueryLimit:
			if b.config.MaxRateLimitRetries > 0 && rateAttempts >= b.config.MaxRateLimitRetries {
				return result, nil
			}
			rateAttempts++
			b.logger.Warn("Rate limited, backing off",
				zap.String("method", method),
				zap.Duration("delay", b.config.RateLimitDelay))
			select {
			case <-time.After(b.config.RateLimitDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}

		default:
			return result, nil
		}
	}
}

// prepareBatchSlot rewrites the first slot's command map into the encoded
// "method?query" form exactly once per Batch value.
func (b *Bitrix24) prepareBatchSlot(params []Params) error {
	if len(params) == 0 {
		return ErrInvalidCmd
	}
	bt, ok := params[0].(*Batch)
	if !ok || bt == nil {
		return ErrInvalidCmd
	}
	if bt.prepared != nil {
		return nil
	}
	prepared, err := prepareBatch(bt.Cmd)
	if err != nil {
		return err
	}
	bt.prepared = prepared
	return nil
}

// encodeParams concatenates the slot encodings in fixed order, ending with
// the implicit auth slot when an auth token is held.
func (b *Bitrix24) encodeParams(params []Params) string {
	var parts []string
	for _, p := range params {
		switch v := p.(type) {
		case Plain:
			if enc := encodeForm(v); enc != "" {
				parts = append(parts, enc)
			}
		case *Batch:
			if v != nil {
				parts = append(parts, v.encodeSlot())
			}
		}
	}
	if auth := b.authToken(); auth != "" {
		parts = append(parts, encodeForm(map[string]any{"auth": auth}))
	}
	return strings.Join(parts, "&")
}

// post performs one transport round trip and classifies the outcome into a
// result mapping.
func (b *Bitrix24) post(ctx context.Context, url, body string) Result {
	resp, err := b.transport.PostForm(ctx, url, body)
	if err != nil {
		var timeoutErr *httpclient.TimeoutError
		if errors.As(err, &timeoutErr) {
			return Result{"error": fmt.Sprintf("Timeout waiting expired [%d sec]", int(b.config.Timeout.Seconds()))}
		}
		var retriesErr *httpclient.RetriesExceededError
		if errors.As(err, &retriesErr) {
			return Result{"error": fmt.Sprintf("Max retries exceeded [%d]", retriesErr.Retries)}
		}
		return Result{"error": fmt.Sprintf("Max retries exceeded [%d]", b.config.MaxRetries)}
	}

	var result Result
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		// The response contract is a JSON object; anything else counts as a
		// decode failure.
		return Result{"error": fmt.Sprintf("Error on decode api response [%s]", resp.Body)}
	}
	return result
}
