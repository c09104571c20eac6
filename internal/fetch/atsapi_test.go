package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joblink/joblink-etl/internal/joblink"
)

func TestATSAPIGreenhouse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/acme-co/jobs/12345", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Senior Software Engineer","content":"..."}`))
	}))
	defer srv.Close()

	api := NewATSAPI(WithGreenhouseBase(srv.URL))
	out, ok := api.Resolve(context.Background(), "https://boards.greenhouse.io/acme-co/jobs/12345?gh_src=abc")
	require.True(t, ok)
	require.Equal(t, joblink.ProviderGreenhouseAPI, out.Provider)
	require.Equal(t, "Acme Co", out.APICompany)
	require.Equal(t, "Senior Software Engineer", out.APIRole)
	require.Equal(t, "https://boards.greenhouse.io/acme-co/jobs/12345", out.FinalURL)
	require.True(t, out.OK())
}

func TestATSAPIGreenhouseJobBoardsHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Data Analyst"}`))
	}))
	defer srv.Close()

	api := NewATSAPI(WithGreenhouseBase(srv.URL))
	out, ok := api.Resolve(context.Background(), "https://job-boards.greenhouse.io/globex/jobs/777")
	require.True(t, ok)
	require.Equal(t, "Globex", out.APICompany)
	require.Equal(t, "Data Analyst", out.APIRole)
}

func TestATSAPILever(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/initech/abc-123", r.URL.Path)
		require.Equal(t, "json", r.URL.Query().Get("mode"))
		_, _ = w.Write([]byte(`{"text":"Platform Engineer","title":"ignored"}`))
	}))
	defer srv.Close()

	api := NewATSAPI(WithLeverBase(srv.URL))
	out, ok := api.Resolve(context.Background(), "https://jobs.lever.co/initech/abc-123")
	require.True(t, ok)
	require.Equal(t, joblink.ProviderLeverAPI, out.Provider)
	require.Equal(t, "Initech", out.APICompany)
	require.Equal(t, "Platform Engineer", out.APIRole)
	require.Equal(t, "https://jobs.lever.co/initech/abc-123", out.FinalURL)
}

func TestATSAPILeverFallsBackToTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Site Reliability Engineer"}`))
	}))
	defer srv.Close()

	api := NewATSAPI(WithLeverBase(srv.URL))
	out, ok := api.Resolve(context.Background(), "https://jobs.lever.co/initech/def-456")
	require.True(t, ok)
	require.Equal(t, "Site Reliability Engineer", out.APIRole)
}

func TestATSAPIUnknownShape(t *testing.T) {
	api := NewATSAPI()
	_, ok := api.Resolve(context.Background(), "https://careers.example.com/jobs/42")
	require.False(t, ok)
}

func TestATSAPIErrorFallsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	api := NewATSAPI(WithGreenhouseBase(srv.URL))
	_, ok := api.Resolve(context.Background(), "https://boards.greenhouse.io/gone/jobs/1")
	require.False(t, ok)
}
