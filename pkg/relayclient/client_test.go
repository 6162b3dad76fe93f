package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgnotify/internal/format"
)

func TestSendPostsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/telegram-notify", r.URL.Path)
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = io.WriteString(w, `{"ok":true,"telegram":{"ok":true}}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/api/telegram-notify", WithHeader("X-Test", "yes"), WithTimeout(time.Second))
	require.NoError(t, err)

	res, err := c.Warning(context.Background(), Payload{
		Title:    "disk",
		Tags:     []string{"ops"},
		Err:      errors.New("no space left"),
		ChatID:   "-100",
		ThreadID: 9,
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.JSONEq(t, `{"ok":true}`, string(res.Telegram))

	assert.Equal(t, "warning", got["type"])
	assert.Equal(t, "disk", got["title"])
	assert.Equal(t, "no space left", got["stack"])
	assert.Equal(t, "-100", got["chatId"])
	assert.EqualValues(t, 9, got["threadId"])
	_, hasDesc := got["description"]
	assert.False(t, hasDesc)
}

func TestExplicitStackWinsOverErr(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = io.WriteString(w, `{"ok":true,"deduplicated":true}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	res, err := c.Error(context.Background(), Payload{Title: "x", Stack: "explicit", Err: errors.New("ignored")})
	require.NoError(t, err)
	assert.True(t, res.Deduplicated)
	assert.Equal(t, "explicit", got["stack"])
	assert.Equal(t, "error", got["type"])
}

func TestSendMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"ok":false,"error":"Too Many Requests (try again in 42s)"}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	_, err = c.Info(context.Background(), Payload{Title: "x"})
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.True(t, re.RateLimited())
	assert.Equal(t, 42*time.Second, re.RetryAfter)
	assert.Contains(t, re.Error(), "Too Many Requests")
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New("ftp://example.test/x")
	assert.Error(t, err)
	_, err = New("::")
	assert.Error(t, err)
}

func TestTypesMatchRelayKinds(t *testing.T) {
	for _, typ := range []Type{TypeInfo, TypeSuccess, TypeWarning, TypeError} {
		assert.True(t, format.Type(typ).Valid(), typ)
	}
}
