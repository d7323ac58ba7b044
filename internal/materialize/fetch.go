// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// fetchArtifact downloads one artifact URL into destDir and returns the
// local path. The download lands in a temporary file and is renamed into
// place only when complete, so an interrupted fetch never leaves a
// half-written artifact behind.
func fetchArtifact(ctx context.Context, client *http.Client, artifactURL, destDir string) (string, error) {
	parsed, err := url.Parse(artifactURL)
	if err != nil {
		return "", fmt.Errorf("invalid artifact URL %q: %w", artifactURL, err)
	}
	filename := path.Base(parsed.Path)
	if filename == "." || filename == "/" {
		return "", fmt.Errorf("artifact URL %q has no filename", artifactURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build artifact request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", &NetworkError{URL: artifactURL, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", &NetworkError{URL: artifactURL, Cause: fmt.Errorf("server returned status %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("artifact download %q returned status %s", artifactURL, resp.Status)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	tmp, err := os.CreateTemp(destDir, "."+filename+".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &NetworkError{URL: artifactURL, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finish download: %w", err)
	}

	final := filepath.Join(destDir, filename)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to place downloaded artifact: %w", err)
	}
	return final, nil
}
