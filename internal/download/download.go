// Package download fetches and unpacks large reference archives, notably
// the NHDPlus national gage datasets.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// NHDPlus national-data archives carrying the gage tables.
var NHDArchives = []string{
	"NHDPlusV21_NationalData_GageInfo_05.7z",
	"NHDPlusV21_NationalData_GageLoc_05.7z",
}

// Fetcher downloads archives over a shared HTTP client. Archives are
// large, so bodies are streamed to disk rather than going through the
// retrying byte-slice client.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher over the given client.
func NewFetcher(httpClient *http.Client, logger *slog.Logger) *Fetcher {
	return &Fetcher{httpClient: httpClient, logger: logger}
}

// FetchArchive downloads rawURL into destDir, keeping the remote
// filename. An archive already on disk is not downloaded again. Returns
// the local path.
func (f *Fetcher) FetchArchive(ctx context.Context, rawURL, destDir string) (string, error) {
	name, err := archiveName(rawURL)
	if err != nil {
		return "", err
	}
	path := filepath.Join(destDir, name)
	if _, err := os.Stat(path); err == nil {
		f.logger.Debug("archive already present", "path", path)
		return path, nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", destDir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	// Download to a temp name first so a partial body never looks like a
	// complete archive on a later run.
	tmp, err := os.CreateTemp(destDir, name+".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("finalize %s: %w", path, err)
	}

	f.logger.Info("archive downloaded", "path", path, "bytes", n)
	return path, nil
}

// ExtractSevenZip unpacks a .7z archive into destDir, preserving the
// archive's internal directory layout.
func ExtractSevenZip(archivePath, destDir string) error {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer r.Close()

	for _, file := range r.File {
		if err := extractOne(file, destDir); err != nil {
			return fmt.Errorf("extract %s from %s: %w", file.Name, archivePath, err)
		}
	}
	return nil
}

func extractOne(file *sevenzip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.Clean(file.Name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("entry escapes destination: %s", file.Name)
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// FetchNHD downloads and unpacks the NHDPlus gage archives from baseURL
// into destDir. Extraction lands next to each archive.
func (f *Fetcher) FetchNHD(ctx context.Context, baseURL, destDir string) error {
	for _, name := range NHDArchives {
		archiveURL, err := url.JoinPath(baseURL, name)
		if err != nil {
			return fmt.Errorf("build URL for %s: %w", name, err)
		}
		path, err := f.FetchArchive(ctx, archiveURL, destDir)
		if err != nil {
			return err
		}
		if err := ExtractSevenZip(path, destDir); err != nil {
			return err
		}
		f.logger.Info("archive unpacked", "archive", name)
	}
	return nil
}

// archiveName extracts the trailing path element of rawURL.
func archiveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}
	name := filepath.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("no archive name in %s", rawURL)
	}
	return name, nil
}
