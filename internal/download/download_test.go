package download

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchArchive_DownloadsAndNames(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.WriteString(w, "archive-bytes")
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(srv.Client(), testLogger())
	dest := t.TempDir()

	path, err := f.FetchArchive(context.Background(), srv.URL+"/NHDPlusV21_NationalData_GageInfo_05.7z", dest)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dest, "NHDPlusV21_NationalData_GageInfo_05.7z"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
	assert.Equal(t, 1, hits)
}

func TestFetchArchive_SkipsExisting(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	t.Cleanup(srv.Close)

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "data.7z"), []byte("cached"), 0o644))

	f := NewFetcher(srv.Client(), testLogger())
	path, err := f.FetchArchive(context.Background(), srv.URL+"/data.7z", dest)
	require.NoError(t, err)

	assert.Zero(t, hits, "an existing archive must not be fetched again")
	data, _ := os.ReadFile(path)
	assert.Equal(t, "cached", string(data))
}

func TestFetchArchive_ErrorStatusLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(srv.Client(), testLogger())
	dest := t.TempDir()

	_, err := f.FetchArchive(context.Background(), srv.URL+"/missing.7z", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NoFileExists(t, filepath.Join(dest, "missing.7z"))
}

func TestArchiveName(t *testing.T) {
	name, err := archiveName("https://example.com/NHDPlusV21/Data/NationalData/GageLoc_05.7z")
	require.NoError(t, err)
	assert.Equal(t, "GageLoc_05.7z", name)

	_, err = archiveName("https://example.com/")
	require.Error(t, err)
}

func TestExtractSevenZip_MissingArchive(t *testing.T) {
	err := ExtractSevenZip(filepath.Join(t.TempDir(), "nope.7z"), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open")
}
