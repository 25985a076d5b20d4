package executor

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/recipe"
)

// runConfig writes a config file. Idempotent: an existing file with the
// wanted content is left untouched, so resume can replay this step safely.
func (e *Executor) runConfig(step *plan.Step, res *plan.StepResult) error {
	path := step.Metadata.ConfigPath
	if path == "" {
		return fmt.Errorf("config step %q has no path", step.ID)
	}
	path = e.expandHome(path)
	want := []byte(step.Metadata.ConfigContent)

	if cur, err := os.ReadFile(path); err == nil && bytes.Equal(cur, want) {
		res.StdoutTail = append(res.StdoutTail, path+" already up to date")
		return nil
	}

	mode := fs.FileMode(step.Metadata.FileMode)
	if mode == 0 {
		mode = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, want, mode); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %q: %w", path, err)
	}
	res.StdoutTail = append(res.StdoutTail, "wrote "+path)
	return nil
}

// runShellConfig appends a marker-guarded line to the user's shell profile.
// Idempotent: a present marker means the line was added by a previous run.
func (e *Executor) runShellConfig(step *plan.Step, res *plan.StepResult) error {
	line := step.Metadata.RCLine
	if line == "" {
		return fmt.Errorf("shell_config step %q has no rc_line", step.ID)
	}
	marker := step.Metadata.Marker
	if marker == "" {
		marker = "# added by provision: " + step.Metadata.Tool
	}

	path := step.Metadata.ConfigPath
	if path == "" {
		path = filepath.Join(e.homeDir, e.shellProfile())
	} else {
		path = e.expandHome(path)
	}

	cur, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %q: %w", path, err)
	}
	if strings.Contains(string(cur), marker) {
		res.StdoutTail = append(res.StdoutTail, path+" already configured")
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	block := "\n" + marker + "\n" + line + "\n"
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("appending to %q: %w", path, err)
	}
	res.StdoutTail = append(res.StdoutTail, "updated "+path)
	return nil
}

// shellProfile picks the rc file for the user's login shell, defaulting to
// .profile when the shell is unrecognized.
func (e *Executor) shellProfile() string {
	shell := filepath.Base(os.Getenv("SHELL"))
	if rc, ok := recipe.ShellProfiles[shell]; ok {
		return rc
	}
	return ".profile"
}

func (e *Executor) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(e.homeDir, path[2:])
	}
	return os.Expand(path, func(name string) string {
		if name == "HOME" {
			return e.homeDir
		}
		return os.Getenv(name)
	})
}
