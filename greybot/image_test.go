package greybot

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImageClient(t testing.TB, rt roundTripFunc) *ImageClient {
	t.Helper()
	cfg := DefaultConfig().Image
	cfg.APIKey = "test-key"
	return newImageClient(cfg, &http.Client{Transport: rt})
}

func TestImageClientUnconfigured(t *testing.T) {
	cfg := DefaultConfig().Image
	assert.Nil(t, newImageClient(cfg, nil))
}

func TestImageLookupSuccess(t *testing.T) {
	var gotReq *http.Request
	client := newTestImageClient(
		t, func(req *http.Request) (*http.Response, error) {
			gotReq = req
			return jsonResponse(
				http.StatusOK, `{
				"photos": [
					{"src": {"large": "https://images.pexels.com/photo1-large.jpg"}},
					{"src": {"large": "https://images.pexels.com/photo2-large.jpg"}}
				]
			}`,
			), nil
		},
	)

	url, err := client.Lookup(context.Background(), "sunset")
	require.NoError(t, err)
	assert.Equal(t, "https://images.pexels.com/photo1-large.jpg", url)

	require.NotNil(t, gotReq)
	assert.Equal(t, "sunset", gotReq.URL.Query().Get("query"))
	assert.Equal(t, "test-key", gotReq.Header.Get("Authorization"))
}

func TestImageLookupNoMatches(t *testing.T) {
	client := newTestImageClient(
		t, func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"photos": []}`), nil
		},
	)

	url, err := client.Lookup(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestImageLookupNonSuccessStatus(t *testing.T) {
	client := newTestImageClient(
		t, func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusForbidden, `{}`), nil
		},
	)

	_, err := client.Lookup(context.Background(), "sunset")
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, upstreamPexels, upstreamErr.Service)
	assert.Equal(t, http.StatusForbidden, upstreamErr.Status)
}
