package cronclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/cron", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["token"] != "s3cret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("OK\n"))
	}))
	defer srv.Close()

	out, err := Trigger(context.Background(), srv.URL+"/", "s3cret", DefaultTimeout)
	require.NoError(t, err)
	assert.Equal(t, "OK", out)

	_, err = Trigger(context.Background(), srv.URL, "wrong", DefaultTimeout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 401")
}
