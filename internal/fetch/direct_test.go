package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joblink/joblink-etl/internal/joblink"
)

func TestDirectFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Mozilla/5.0 test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html><title>Engineer | Acme</title></html>"))
	}))
	defer srv.Close()

	d := NewDirect(DirectConfig{UserAgent: "Mozilla/5.0 test"})
	out, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, out.Status)
	require.Contains(t, out.HTML, "Engineer | Acme")
	require.Equal(t, joblink.ProviderDirect, out.Provider)
	require.True(t, out.OK())
}

func TestDirectFetchFollowsRedirects(t *testing.T) {
	var target string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target+"/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>landed</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	target = srv.URL

	d := NewDirect(DirectConfig{})
	out, err := d.Fetch(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/final", out.FinalURL)
	require.Contains(t, out.HTML, "landed")
}

func TestDirectFetchNonOKIsStillResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>blocked</html>"))
	}))
	defer srv.Close()

	d := NewDirect(DirectConfig{})
	out, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, out.Status)
	require.False(t, out.OK())
}

func TestDirectFetchCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := NewDirect(DirectConfig{})
	_, err := d.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
