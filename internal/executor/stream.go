package executor

import (
	"io"
	"strings"
	"sync"
	"time"
)

// tailLimit is how many trailing lines of each stream a step result keeps.
const tailLimit = 200

// flushQuiet is how long a partial line may sit unterminated before the
// streamer forwards it anyway. Progress bars rewrite a line with \r and
// never send \n; without this they would be invisible until process exit.
const flushQuiet = 100 * time.Millisecond

// tailBuffer keeps the last tailLimit lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > tailLimit {
		t.lines = t.lines[len(t.lines)-tailLimit:]
	}
}

// Lines returns a copy of the buffered tail.
func (t *tailBuffer) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

// lineStreamer is an io.Writer that splits process output into lines,
// records them in a tail buffer, and optionally forwards them to a sink
// prefixed with the step label. A partial line is flushed after flushQuiet
// of silence.
type lineStreamer struct {
	tail   *tailBuffer
	sink   io.Writer // nil when the step is not streaming
	prefix string
	scrub  func(string) string

	mu      sync.Mutex
	partial strings.Builder
	timer   *time.Timer
	closed  bool
}

func newLineStreamer(tail *tailBuffer, sink io.Writer, prefix string, scrub func(string) string) *lineStreamer {
	if scrub == nil {
		scrub = func(s string) string { return s }
	}
	return &lineStreamer{tail: tail, sink: sink, prefix: prefix, scrub: scrub}
}

func (s *lineStreamer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range p {
		switch b {
		case '\n', '\r':
			s.emitLocked()
		default:
			s.partial.WriteByte(b)
		}
	}
	if s.partial.Len() > 0 {
		s.armTimerLocked()
	}
	return len(p), nil
}

// Close flushes any trailing partial line. Call after the process exits.
func (s *lineStreamer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.partial.Len() > 0 {
		s.emitLocked()
	}
}

func (s *lineStreamer) emitLocked() {
	line := s.scrub(s.partial.String())
	s.partial.Reset()
	if s.timer != nil {
		s.timer.Stop()
	}
	if line == "" {
		return
	}
	s.tail.add(line)
	if s.sink != nil {
		io.WriteString(s.sink, s.prefix+line+"\n")
	}
}

func (s *lineStreamer) armTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(flushQuiet, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed && s.partial.Len() > 0 {
			s.emitLocked()
		}
	})
}
