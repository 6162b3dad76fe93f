package relayclient_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgnotify/pkg/relayclient"
)

func TestSendWithExportedType(t *testing.T) {
	var got struct {
		Type string `json:"type"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c, err := relayclient.New(srv.URL)
	require.NoError(t, err)

	var typ relayclient.Type = relayclient.TypeSuccess
	res, err := c.Send(context.Background(), typ, relayclient.Payload{Title: "deployed"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "success", got.Type)
}
