package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/secrets"
)

// killGrace is how long a terminated process group gets to exit after
// SIGTERM before it is SIGKILLed.
const killGrace = 5 * time.Second

// CommandSpec describes one process invocation.
type CommandSpec struct {
	Argv []string

	// Env is the plan-provided overlay; values may reference variables
	// from the inherited environment ($HOME, $PATH) and are expanded
	// before launch.
	Env map[string]string

	Dir       string
	Sudo      bool
	Streaming bool
	Timeout   time.Duration
	Label     string
}

// CommandResult is the observed outcome of a completed process.
type CommandResult struct {
	ExitCode   int
	StdoutTail []string
	StderrTail []string
	TimedOut   bool
}

// Runner launches processes. The real implementation shells out; tests
// substitute a fake that scripts outcomes per command.
type Runner interface {
	Run(ctx context.Context, spec CommandSpec) (*CommandResult, error)
}

// execRunner runs commands on the host. Privileged commands are wrapped in
// `sudo -S` with the password fed over stdin; the password never appears in
// argv and output tails are scrubbed before they leave this package.
type execRunner struct {
	logger    log.Logger
	passwords secrets.PasswordProvider
	sink      io.Writer // destination for streamed lines
}

func newExecRunner(logger log.Logger, passwords secrets.PasswordProvider, sink io.Writer) *execRunner {
	return &execRunner{logger: logger, passwords: passwords, sink: sink}
}

func (r *execRunner) Run(ctx context.Context, spec CommandSpec) (*CommandResult, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty command")
	}

	argv := spec.Argv
	var password []byte
	if spec.Sudo && os.Geteuid() != 0 {
		if r.passwords == nil {
			return nil, secrets.ErrNoPassword
		}
		pw, err := r.passwords.Password()
		if err != nil {
			return nil, err
		}
		password = pw
		// -k forces a fresh authentication so a stale timestamp cannot
		// mask a wrong password; -p "" suppresses the prompt on stderr.
		argv = append([]string{"sudo", "-k", "-S", "-p", "", "--"}, argv...)
	}
	defer func() {
		for i := range password {
			password[i] = 0
		}
	}()

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	scrub := func(line string) string { return secrets.Scrub(line, password) }
	stdoutTail, stderrTail := &tailBuffer{}, &tailBuffer{}
	sink := io.Writer(nil)
	if spec.Streaming && r.sink != nil {
		sink = r.sink
	}
	prefix := ""
	if spec.Label != "" {
		prefix = "  [" + spec.Label + "] "
	}
	outStream := newLineStreamer(stdoutTail, sink, prefix, scrub)
	errStream := newLineStreamer(stderrTail, sink, prefix, scrub)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = mergedEnv(spec.Env)
	cmd.Stdout = outStream
	cmd.Stderr = errStream
	if password != nil {
		cmd.Stdin = bytes.NewReader(append(append([]byte(nil), password...), '\n'))
	}
	// Own process group so cancellation kills the whole tree, including
	// children a package manager forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	r.logger.Debug("running step command", "label", spec.Label, "argv", strings.Join(spec.Argv, " "), "sudo", spec.Sudo)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %q: %w", spec.Argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		timedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		waitErr = r.terminate(cmd, done)
	}
	outStream.Close()
	errStream.Close()

	res := &CommandResult{
		StdoutTail: stdoutTail.Lines(),
		StderrTail: stderrTail.Lines(),
		TimedOut:   timedOut,
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return res, fmt.Errorf("waiting for %q: %w", spec.Argv[0], waitErr)
		}
	}
	if timedOut {
		return res, fmt.Errorf("%q timed out after %s", spec.Argv[0], spec.Timeout)
	}
	return res, nil
}

// terminate sends SIGTERM to the process group, escalating to SIGKILL after
// the grace period.
func (r *execRunner) terminate(cmd *exec.Cmd, done <-chan error) error {
	pgid := -cmd.Process.Pid
	_ = unix.Kill(pgid, unix.SIGTERM)
	select {
	case err := <-done:
		return err
	case <-time.After(killGrace):
		_ = unix.Kill(pgid, unix.SIGKILL)
		return <-done
	}
}

// mergedEnv overlays the step env onto the process environment, expanding
// $VAR references in overlay values against the merged set. A PATH overlay
// of "$HOME/.cargo/bin:$PATH" therefore augments rather than replaces.
func mergedEnv(overlay map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged[k] = os.Expand(overlay[k], func(name string) string { return merged[name] })
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
