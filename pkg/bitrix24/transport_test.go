package bitrix24

import (
	"context"
	"sync"

	httpclient "github.com/crmkit/b24/pkg/http"
	"go.uber.org/zap"
)

// fakeTransport records every request and replays queued responses. When the
// queue runs dry it answers with a generic success payload.
type fakeTransport struct {
	mu        sync.Mutex
	calls     []transportCall
	responses []fakeResponse
}

type transportCall struct {
	URL  string
	Body string
}

type fakeResponse struct {
	body string
	err  error
}

func (f *fakeTransport) queue(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{body: body})
}

func (f *fakeTransport) queueErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{err: err})
}

func (f *fakeTransport) PostForm(_ context.Context, url string, body string) (*httpclient.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{URL: url, Body: body})
	if len(f.responses) == 0 {
		return &httpclient.Response{StatusCode: 200, Body: []byte(`{"result":true}`)}, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &httpclient.Response{StatusCode: 200, Body: []byte(next.body)}, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestClient(cfg *Config) (*Bitrix24, *fakeTransport) {
	transport := &fakeTransport{}
	return NewWithTransport(cfg, transport, zap.NewNop()), transport
}
