package bitrix24

import (
	"context"

	httpclient "github.com/crmkit/b24/pkg/http"
)

// Client defines the operations of the Bitrix24 API client.
type Client interface {
	// Call invokes a named REST method with up to four ordered parameter
	// slots.
	Call(ctx context.Context, method string, params ...Params) (Result, error)

	// CallBatch drives the batch method over a command map of any size,
	// chunking it by the per-request sub-call limit.
	CallBatch(ctx context.Context, batch *Batch) (Result, error)

	// RefreshTokens exchanges the refresh token for a new token pair.
	RefreshTokens(ctx context.Context) (Result, bool)

	// Tokens returns the token pair currently held by the client.
	Tokens() Tokens
}

// Transport issues form-encoded POST requests on behalf of the client. It is
// expected to retry connection-level failures internally and to surface read
// timeouts as *http.TimeoutError and exhausted retry budgets as
// *http.RetriesExceededError.
type Transport interface {
	PostForm(ctx context.Context, url string, body string) (*httpclient.Response, error)
}
