package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/config"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/httputil"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
)

// newDownloadClient builds the hardened HTTP client used for artifact
// downloads. The overall timeout tracks the build budget because release
// archives can be large.
func newDownloadClient() *http.Client {
	opts := httputil.DefaultOptions()
	opts.Timeout = config.GetBuildTimeout()
	return httputil.NewSecureClient(opts)
}

// runDownload fetches a URL to a destination path and verifies the declared
// size and SHA-256 digest. A destination that already matches the digest is
// kept as is.
func (e *Executor) runDownload(ctx context.Context, step *plan.Step, res *plan.StepResult) error {
	url := step.Metadata.URL
	dest := e.expandHome(step.Metadata.Dest)
	if url == "" || dest == "" {
		return fmt.Errorf("download step %q needs url and dest", step.ID)
	}

	if step.Metadata.SHA256 != "" {
		if sum, err := fileSHA256(dest); err == nil && sum == step.Metadata.SHA256 {
			res.StdoutTail = append(res.StdoutTail, dest+" already downloaded and verified")
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating download dir: %w", err)
	}

	sum, size, err := e.fetch(ctx, url, dest)
	if err != nil {
		return err
	}
	res.StdoutTail = append(res.StdoutTail,
		fmt.Sprintf("downloaded %s (%d bytes, sha256 %s)", dest, size, sum))

	if want := step.Metadata.Size; want > 0 && size != want {
		os.Remove(dest)
		return fmt.Errorf("size mismatch for %q: got %d bytes, want %d", url, size, want)
	}
	if want := step.Metadata.SHA256; want != "" && sum != want {
		os.Remove(dest)
		return fmt.Errorf("checksum mismatch for %q: got %s, want %s", url, sum, want)
	}
	return nil
}

// fetch streams the body to dest via a temp file, hashing as it copies.
func (e *Executor) fetch(ctx context.Context, url, dest string) (sum string, size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetching %q: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("fetching %q: HTTP %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", 0, err
	}
	defer func() {
		tmp.Close()
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("saving %q: %w", url, err)
	}
	if err = tmp.Close(); err != nil {
		return "", 0, err
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
