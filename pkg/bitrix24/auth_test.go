package bitrix24

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokens_Success(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(&Config{
		Domain:       "acme.bitrix24.ru",
		AuthToken:    "a0",
		RefreshToken: "r0",
		ClientID:     "app.id",
		ClientSecret: "app.secret",
	})
	transport.queue(`{"access_token":"a1","refresh_token":"r1","expires_in":3600}`)

	failure, ok := client.RefreshTokens(context.Background())

	require.True(t, ok)
	assert.Nil(t, failure)
	assert.Equal(t, Tokens{AuthToken: "a1", RefreshToken: "r1"}, client.Tokens())

	require.Equal(t, 1, transport.callCount())
	assert.Contains(t, transport.calls[0].URL, "client_secret=app.secret")
	assert.Empty(t, transport.calls[0].Body)
}

func TestRefreshTokens_DecodeFailure(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(&Config{
		Domain:       "acme.bitrix24.ru",
		AuthToken:    "a0",
		RefreshToken: "r0",
	})
	transport.queue(`<html>bad gateway</html>`)

	failure, ok := client.RefreshTokens(context.Background())

	require.False(t, ok)
	assert.Equal(t, "Error on decode oauth response [<html>bad gateway</html>]", failure.ErrorCode())
	assert.Equal(t, Tokens{AuthToken: "a0", RefreshToken: "r0"}, client.Tokens())
}

func TestRefreshTokens_MissingFields(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(&Config{
		Domain:       "acme.bitrix24.ru",
		AuthToken:    "a0",
		RefreshToken: "r0",
	})
	transport.queue(`{"error":"invalid_grant"}`)

	failure, ok := client.RefreshTokens(context.Background())

	require.False(t, ok)
	assert.Contains(t, failure.ErrorCode(), "Error on decode oauth response")
	assert.Equal(t, Tokens{AuthToken: "a0", RefreshToken: "r0"}, client.Tokens())
}
