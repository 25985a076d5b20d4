package executor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/go-github/v57/github"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
)

// runGitHubRelease resolves a release asset through the GitHub API,
// downloads it, and installs it under the step's prefix. Plain binary
// assets are made executable; archives are unpacked.
func (e *Executor) runGitHubRelease(ctx context.Context, step *plan.Step, res *plan.StepResult) error {
	owner, repo, ok := splitRepo(step.Metadata.Repo)
	if !ok {
		return fmt.Errorf("github_release step %q has malformed repo %q", step.ID, step.Metadata.Repo)
	}

	rel, err := e.lookupRelease(ctx, owner, repo, step.Metadata.Tag)
	if err != nil {
		return err
	}

	asset := pickAsset(rel.Assets, step.Metadata.AssetPattern)
	if asset == nil {
		return fmt.Errorf("release %s of %s/%s has no asset matching %q",
			rel.GetTagName(), owner, repo, step.Metadata.AssetPattern)
	}
	res.StdoutTail = append(res.StdoutTail,
		fmt.Sprintf("selected %s from release %s", asset.GetName(), rel.GetTagName()))

	prefix := e.expandHome(step.Metadata.InstallPrefix)
	if prefix == "" {
		return fmt.Errorf("github_release step %q has no install prefix", step.ID)
	}
	if err := os.MkdirAll(prefix, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", prefix, err)
	}

	tmpDir, err := os.MkdirTemp("", "provision-release-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	archive := filepath.Join(tmpDir, asset.GetName())
	sum, size, err := e.fetch(ctx, asset.GetBrowserDownloadURL(), archive)
	if err != nil {
		return err
	}
	res.StdoutTail = append(res.StdoutTail,
		fmt.Sprintf("downloaded %s (%d bytes, sha256 %s)", asset.GetName(), size, sum))
	if want := step.Metadata.SHA256; want != "" && sum != want {
		return fmt.Errorf("checksum mismatch for %q: got %s, want %s", asset.GetName(), sum, want)
	}

	installed, err := installArtifact(archive, prefix, step.Metadata.Tool)
	if err != nil {
		return err
	}
	res.StdoutTail = append(res.StdoutTail, "installed "+installed)
	return nil
}

func (e *Executor) lookupRelease(ctx context.Context, owner, repo, tag string) (*github.RepositoryRelease, error) {
	if tag != "" {
		rel, _, err := e.github.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
		if err != nil {
			return nil, fmt.Errorf("release %q of %s/%s: %w", tag, owner, repo, err)
		}
		return rel, nil
	}
	rel, _, err := e.github.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("latest release of %s/%s: %w", owner, repo, err)
	}
	return rel, nil
}

// pickAsset matches release assets against a glob pattern, falling back to
// substring match when the pattern is not a valid glob.
func pickAsset(assets []*github.ReleaseAsset, pattern string) *github.ReleaseAsset {
	if pattern == "" && len(assets) == 1 {
		return assets[0]
	}
	for _, a := range assets {
		if ok, err := path.Match(pattern, a.GetName()); err == nil && ok {
			return a
		}
	}
	return nil
}

func splitRepo(full string) (owner, repo string, ok bool) {
	dir, base := path.Split(full)
	owner = path.Clean(dir)
	if owner == "." || owner == "/" || base == "" {
		return "", "", false
	}
	return owner, base, true
}
