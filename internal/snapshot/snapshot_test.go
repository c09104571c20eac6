package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutObject(t *testing.T) {
	s := NewMemoryStore()
	uri, err := s.PutObject(context.Background(), "snapshots/abc.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/abc.html", uri)

	data, ok := s.Get("snapshots/abc.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(data))
}

func TestLocalStorePutObject(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)

	uri, err := s.PutObject(context.Background(), "snapshots/abc.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "snapshots", "abc.html"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "snapshots", "abc.html"))
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(data))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), "../escape.html", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestLocalStoreCreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "snaps")
	_, err := NewLocalStore(dir)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
