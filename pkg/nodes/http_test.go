package nodes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	t.Cleanup(server.Close)

	get := func(ctx context.Context, path string) (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)

		return Do(server.Client(), req)
	}

	resp, err := get(context.Background(), "/ok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))

	for _, path := range []string{"/unauthorized", "/forbidden"} {
		_, err = get(context.Background(), path)

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
	}

	_, err = get(context.Background(), "/broken")

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadGateway, remoteErr.Status)
	assert.Equal(t, "upstream down", remoteErr.Body)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = get(ctx, "/slow")

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}
