package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacklist-hub/blacklist/collection/envcfg"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	feed := NewRegtech()
	require.NoError(t, registry.Register(feed))

	assert.Error(t, registry.Register(feed), "duplicate registration must fail")

	got, ok := registry.Get("regtech")
	assert.True(t, ok)
	assert.Equal(t, feed, got)

	_, ok = registry.Get("nosuch")
	assert.False(t, ok)

	require.NoError(t, registry.Register(NewSecudium()))
	assert.Equal(t, []string{"regtech", "secudium"}, registry.Names())
}

func TestHTTPFeedCollect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			if r.FormValue("username") != "user" || r.FormValue("password") != "pass" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/blacklist/export":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("# comment\n1.2.3.4\n5.6.7.8\n\n9.9.9.9\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	t.Run("collects and counts entries", func(t *testing.T) {
		t.Setenv(envcfg.EnvRegtechBaseURL, server.URL)
		t.Setenv(envcfg.EnvRegtechUsername, "user")
		t.Setenv(envcfg.EnvRegtechPassword, "pass")

		result := NewRegtech().Collect(context.Background())
		assert.True(t, result.Success)
		assert.Equal(t, 3, result.CollectedCount)
	})

	t.Run("rejected login fails the run", func(t *testing.T) {
		t.Setenv(envcfg.EnvRegtechBaseURL, server.URL)
		t.Setenv(envcfg.EnvRegtechUsername, "user")
		t.Setenv(envcfg.EnvRegtechPassword, "wrong")

		result := NewRegtech().Collect(context.Background())
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "login failed")
	})

	t.Run("missing credentials fail before any request", func(t *testing.T) {
		t.Setenv(envcfg.EnvRegtechBaseURL, server.URL)
		t.Setenv(envcfg.EnvRegtechUsername, "")
		t.Setenv(envcfg.EnvRegtechPassword, "")

		result := NewRegtech().Collect(context.Background())
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "credentials")
	})
}
