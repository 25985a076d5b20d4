package executor

import (
	"context"
	"strings"
	"sync"
)

// FakeResponse scripts one outcome for the FakeRunner.
type FakeResponse struct {
	ExitCode int
	Stdout   []string
	Stderr   []string
	Err      error
}

// FakeRunner is a Runner for tests: it records every invocation and
// returns scripted responses keyed by command prefix.
type FakeRunner struct {
	mu        sync.Mutex
	calls     []CommandSpec
	responses map[string]FakeResponse
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string]FakeResponse)}
}

// Respond registers a response for commands whose joined argv starts with
// prefix. The longest matching prefix wins.
func (f *FakeRunner) Respond(prefix string, resp FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = resp
}

// Calls returns a copy of the recorded invocations in order.
func (f *FakeRunner) Calls() []CommandSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CommandSpec(nil), f.calls...)
}

// CommandLines renders the recorded argv lists as joined strings.
func (f *FakeRunner) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c.Argv, " ")
	}
	return out
}

func (f *FakeRunner) Run(ctx context.Context, spec CommandSpec) (*CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	joined := strings.Join(spec.Argv, " ")
	var best string
	found := false
	for prefix := range f.responses {
		if strings.HasPrefix(joined, prefix) && (!found || len(prefix) > len(best)) {
			best, found = prefix, true
		}
	}
	resp := f.responses[best]
	f.mu.Unlock()

	if !found {
		return &CommandResult{}, nil
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &CommandResult{
		ExitCode:   resp.ExitCode,
		StdoutTail: resp.Stdout,
		StderrTail: resp.Stderr,
	}, nil
}
