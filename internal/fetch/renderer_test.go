package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joblink/joblink-etl/internal/joblink"
)

func TestRemoteRendererRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("x-renderer-key"))
		require.Equal(t, "https://example.com/job", r.URL.Query().Get("url"))
		require.Equal(t, "domcontentloaded", r.URL.Query().Get("wait"))
		require.Equal(t, "12000", r.URL.Query().Get("timeout"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":200,"finalUrl":"https://example.com/job/final","html":"<html><h1>Engineer</h1></html>","ms":850}`))
	}))
	defer srv.Close()

	r, err := NewRemoteRenderer(RemoteRendererConfig{BaseURL: srv.URL, Key: "secret"})
	require.NoError(t, err)

	out, err := r.Render(context.Background(), "https://example.com/job")
	require.NoError(t, err)
	require.Equal(t, 200, out.Status)
	require.Equal(t, "https://example.com/job/final", out.FinalURL)
	require.Contains(t, out.HTML, "Engineer")
	require.Equal(t, joblink.ProviderRenderer, out.Provider)
}

func TestRemoteRendererFinalURLFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"html":"<html></html>","ms":10}`))
	}))
	defer srv.Close()

	r, err := NewRemoteRenderer(RemoteRendererConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := r.Render(context.Background(), "https://example.com/job")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/job", out.FinalURL)
}

func TestRemoteRendererErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r, err := NewRemoteRenderer(RemoteRendererConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = r.Render(context.Background(), "https://example.com/job")
	require.Error(t, err)
}

func TestRemoteRendererRequiresBaseURL(t *testing.T) {
	_, err := NewRemoteRenderer(RemoteRendererConfig{})
	require.Error(t, err)
}

func TestRemoteRendererClampsTimeout(t *testing.T) {
	r, err := NewRemoteRenderer(RemoteRendererConfig{BaseURL: "http://localhost:9", TimeoutMs: 99999})
	require.NoError(t, err)
	require.Equal(t, 12000, r.cfg.TimeoutMs)
}
