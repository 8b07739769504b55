package transcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// IsRemote reports whether an input path is an http(s) URL rather than a
// local file.
func IsRemote(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// Fetcher downloads remote inputs into the workspace so probing, scene
// detection and multi-attempt encoding read a local file instead of pulling
// the source repeatedly.
type Fetcher struct {
	client       *http.Client
	downloadsDir string
	logger       *slog.Logger
}

// NewFetcher creates a Fetcher writing into downloadsDir.
func NewFetcher(downloadsDir string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:       &http.Client{Timeout: 0},
		downloadsDir: downloadsDir,
		logger:       logger,
	}
}

// Fetch streams the URL to a job-scoped local file and returns its path and
// a cleanup function removing it. The file is named <jobID>-<basename> so
// concurrent restarts never collide and leftovers are attributable.
func (f *Fetcher) Fetch(ctx context.Context, jobID, rawURL string) (string, func(), error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parsing input url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		name = "input"
	}

	if err := os.MkdirAll(f.downloadsDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating downloads directory: %w", err)
	}
	local := filepath.Join(f.downloadsDir, jobID+"-"+name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("building download request: %w", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("downloading input: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("downloading input: unexpected status %s", resp.Status)
	}

	out, err := os.Create(local)
	if err != nil {
		return "", nil, fmt.Errorf("creating download file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err != nil {
		os.Remove(local)
		return "", nil, fmt.Errorf("downloading input: %w", err)
	}
	if closeErr != nil {
		os.Remove(local)
		return "", nil, fmt.Errorf("finalizing download: %w", closeErr)
	}

	f.logger.Info("downloaded remote input",
		slog.String("job_id", jobID),
		slog.String("url", rawURL),
		slog.Int64("bytes", written),
		slog.Duration("elapsed", time.Since(start)),
	)

	cleanup := func() {
		if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("removing downloaded input",
				slog.String("path", local),
				slog.String("error", err.Error()),
			)
		}
	}
	return local, cleanup, nil
}
