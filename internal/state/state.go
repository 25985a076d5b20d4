// Package state persists plan execution records under the state root so
// interrupted installs can be inspected and resumed. Records are one JSON
// file per plan id, written atomically via temp file and rename.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/log"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
)

// PlanStatus is the lifecycle state of a whole plan run.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanRunning   PlanStatus = "running"
	PlanSucceeded PlanStatus = "succeeded"
	PlanFailed    PlanStatus = "failed"

	// PlanPaused marks a cancelled or orphaned run: no step failed for
	// good, the plan just stopped, and a resume picks up where it left off.
	PlanPaused PlanStatus = "paused"
)

// PlanState is the persisted record of one plan execution. Step results are
// append-only; LastCompletedIndex is the resume cursor into Plan.Steps and
// counts the longest prefix of steps that completed in natural order.
type PlanState struct {
	PlanID    string     `json:"plan_id"`
	Tool      string     `json:"tool"`
	Status    PlanStatus `json:"status"`
	Plan      *plan.Plan `json:"plan"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// PID of the process that owns the run; 0 once it finishes. Used to
	// tell a crashed run from one still in flight.
	PID int `json:"pid,omitempty"`

	LastCompletedIndex int `json:"last_completed_index"`

	// Results maps step id to its most recent outcome.
	Results map[string]*plan.StepResult `json:"results"`
}

// ErrPlanNotFound reports a plan id with no record on disk.
var ErrPlanNotFound = errors.New("plan not found")

// CorruptError reports an unreadable record. The file is quarantined with a
// .corrupt suffix so the next load does not trip over it again.
type CorruptError struct {
	PlanID string
	Path   string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("plan state %q is corrupted (quarantined at %s): %v", e.PlanID, e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store reads and writes plan records in a directory.
type Store struct {
	dir    string
	logger log.Logger

	// alive reports whether a pid is still running. Injected for tests.
	alive func(pid int) bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l log.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithAliveCheck replaces the process liveness probe.
func WithAliveCheck(alive func(pid int) bool) StoreOption {
	return func(s *Store) { s.alive = alive }
}

// NewStore opens (creating if needed) a store at dir.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating plans dir: %w", err)
	}
	s := &Store{
		dir:    dir,
		logger: log.Default(),
		alive:  processAlive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// processAlive probes with signal 0. EPERM still means the pid exists.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (s *Store) path(planID string) string {
	return filepath.Join(s.dir, planID+".json")
}

// Save writes the record atomically, bumping UpdatedAt.
func (s *Store) Save(ps *PlanState) error {
	if ps.PlanID == "" {
		return errors.New("plan state has no plan id")
	}
	ps.UpdatedAt = time.Now().UTC()
	if ps.CreatedAt.IsZero() {
		ps.CreatedAt = ps.UpdatedAt
	}
	if ps.Results == nil {
		ps.Results = map[string]*plan.StepResult{}
	}

	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan state: %w", err)
	}
	data = append(data, '\n')

	path := s.path(ps.PlanID)
	tmp, err := os.CreateTemp(s.dir, ".plan-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %q: %w", path, err)
	}
	return nil
}

// Load reads one record. Corrupted files are quarantined and reported.
func (s *Store) Load(planID string) (*PlanState, error) {
	path := s.path(planID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	if err != nil {
		return nil, err
	}

	var ps PlanState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, s.quarantine(planID, path, err)
	}
	if ps.PlanID == "" || ps.Plan == nil {
		return nil, s.quarantine(planID, path, errors.New("missing plan_id or plan"))
	}
	return &ps, nil
}

func (s *Store) quarantine(planID, path string, cause error) error {
	qpath := path + ".corrupt"
	if err := os.Rename(path, qpath); err != nil {
		s.logger.Warn("could not quarantine corrupted plan state", "plan", planID, "error", err.Error())
		qpath = path
	}
	s.logger.Warn("quarantined corrupted plan state", "plan", planID, "path", qpath)
	return &CorruptError{PlanID: planID, Path: qpath, Err: cause}
}

// Delete removes a record. Missing records are not an error.
func (s *Store) Delete(planID string) error {
	err := os.Remove(s.path(planID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List returns every readable record, newest update first. Corrupted files
// are quarantined and skipped.
func (s *Store) List() ([]*PlanState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var out []*PlanState
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ps, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			var cerr *CorruptError
			if errors.As(err, &cerr) {
				continue
			}
			return nil, err
		}
		out = append(out, ps)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].PlanID < out[j].PlanID
	})
	return out, nil
}

// ListPending returns resumable records: pending, paused, failed, and
// running ones whose owner process is gone (after reaping them to paused).
func (s *Store) ListPending() ([]*PlanState, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	var out []*PlanState
	for _, ps := range all {
		switch ps.Status {
		case PlanPending, PlanPaused, PlanFailed:
			out = append(out, ps)
		case PlanRunning:
			if reaped, err := s.reap(ps); err != nil {
				return nil, err
			} else if reaped {
				out = append(out, ps)
			}
		}
	}
	return out, nil
}

// reap marks a running record paused when its owner process no longer
// exists. Returns whether the record is now resumable.
func (s *Store) reap(ps *PlanState) (bool, error) {
	if ps.PID > 0 && s.alive(ps.PID) {
		return false, nil
	}
	s.logger.Warn("reaping stale plan run", "plan", ps.PlanID, "tool", ps.Tool, "pid", ps.PID)
	ps.Status = PlanPaused
	ps.PID = 0
	if err := s.Save(ps); err != nil {
		return false, err
	}
	return true, nil
}

// CompletedSteps returns the set of step ids that succeeded.
func (ps *PlanState) CompletedSteps() map[string]bool {
	done := make(map[string]bool, len(ps.Results))
	for id, r := range ps.Results {
		if r != nil && r.Ok() {
			done[id] = true
		}
	}
	return done
}

// AdvanceCursor recomputes LastCompletedIndex: the length of the longest
// prefix of plan steps whose results succeeded.
func (ps *PlanState) AdvanceCursor() {
	done := ps.CompletedSteps()
	n := 0
	for _, step := range ps.Plan.Steps {
		if !done[step.ID] {
			break
		}
		n++
	}
	ps.LastCompletedIndex = n
}
