// Package secrets handles the sudo password used for privileged steps.
//
// The password is held in memory only: it is fed to sudo over stdin,
// never placed in argv, never logged, and never written into plan state.
// Output tails are scrubbed with Scrub before persistence as a second
// line of defense.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNoPassword is returned when a provider cannot produce a password,
// e.g. a terminal prompt on a non-interactive stdin.
var ErrNoPassword = errors.New("no sudo password available")

// PasswordProvider supplies the sudo password on demand. Providers must be
// safe for concurrent use; parallel steps may request the password at once.
type PasswordProvider interface {
	Password() ([]byte, error)
}

// TerminalProvider prompts on the controlling terminal with echo disabled.
type TerminalProvider struct {
	// Prompt overrides the default prompt text.
	Prompt string
}

// Password reads the password from the terminal. Fails when stdin is not a
// terminal so unattended runs error out instead of hanging.
func (p *TerminalProvider) Password() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%w: stdin is not a terminal", ErrNoPassword)
	}
	prompt := p.Prompt
	if prompt == "" {
		prompt = "[sudo] password: "
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return pw, nil
}

// StaticProvider returns a fixed password. Test use only.
type StaticProvider struct {
	Value []byte
}

func (p *StaticProvider) Password() ([]byte, error) {
	if len(p.Value) == 0 {
		return nil, ErrNoPassword
	}
	return append([]byte(nil), p.Value...), nil
}

// CachingProvider wraps another provider and asks it at most once, so a
// plan with several sudo steps prompts a single time.
type CachingProvider struct {
	Inner PasswordProvider

	mu     sync.Mutex
	cached []byte
	err    error
	asked  bool
}

func NewCaching(inner PasswordProvider) *CachingProvider {
	return &CachingProvider{Inner: inner}
}

func (p *CachingProvider) Password() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.asked {
		p.cached, p.err = p.Inner.Password()
		p.asked = true
	}
	if p.err != nil {
		return nil, p.err
	}
	return append([]byte(nil), p.cached...), nil
}

// Zero wipes the cached password. Call when execution finishes.
func (p *CachingProvider) Zero() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.cached {
		p.cached[i] = 0
	}
	p.cached = nil
	p.asked = false
	p.err = nil
}

// Scrub replaces occurrences of the password in a line with a placeholder.
// Applied to output tails before they are logged or persisted.
func Scrub(line string, password []byte) string {
	if len(password) == 0 {
		return line
	}
	return strings.ReplaceAll(line, string(password), "********")
}

// ScrubAll scrubs every line in place and returns the slice.
func ScrubAll(lines []string, password []byte) []string {
	for i := range lines {
		lines[i] = Scrub(lines[i], password)
	}
	return lines
}
