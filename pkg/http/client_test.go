package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostForm_SendsFormBody(t *testing.T) {
	t.Parallel()

	var gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = w.Write([]byte(`{"result":true}`))
	}))
	defer server.Close()

	client := NewClientWith(time.Second, 2, zap.NewNop())

	resp, err := client.PostForm(context.Background(), server.URL, "fields[TITLE]=x&auth=tok")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"result":true}`, string(resp.Body))
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "fields[TITLE]=x&auth=tok", gotBody)
}

func TestPostForm_StatusNotInterpreted(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"INTERNAL_SERVER_ERROR"}`))
	}))
	defer server.Close()

	client := NewClientWith(time.Second, 5, zap.NewNop())

	resp, err := client.PostForm(context.Background(), server.URL, "")
	require.NoError(t, err)

	// Status codes travel to the caller untouched; only connection failures
	// are retried.
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostForm_ReadTimeout(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClientWith(50*time.Millisecond, 5, zap.NewNop())

	_, err := client.PostForm(context.Background(), server.URL, "")

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
	// Timeouts are terminal, never retried.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostForm_RetriesExhausted(t *testing.T) {
	t.Parallel()

	// A closed server yields connection refusals on every attempt.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClientWith(time.Second, 2, zap.NewNop())

	_, err := client.PostForm(context.Background(), url, "")

	var retriesErr *RetriesExceededError
	require.ErrorAs(t, err, &retriesErr)
	assert.Equal(t, 2, retriesErr.Retries)
	assert.Error(t, errors.Unwrap(retriesErr))
}

func TestPostForm_RecoversFromConnectionFailure(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"result":true}`))
	}))
	defer server.Close()

	client := NewClientWith(time.Second, 5, zap.NewNop())

	resp, err := client.PostForm(context.Background(), server.URL, "")
	require.NoError(t, err)

	assert.Equal(t, `{"result":true}`, string(resp.Body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	got, err := BuildURL("https://oauth.bitrix.info", "/oauth/token/", map[string]string{
		"grant_type": "refresh_token",
		"client_id":  "app.id",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://oauth.bitrix.info/oauth/token/?client_id=app.id&grant_type=refresh_token", got)
}
