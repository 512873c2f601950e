package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Marker file names inside a job directory.
//
// NOTE: These names are the on-disk contract observed by other processes.
const (
	markerRunning = "running"
	markerPaused  = "paused"

	descriptorFile = "job.json"
	resultFile     = "result.json"
)

func requestMarker(action Action) string {
	return string(action) + "_requested"
}

// FSStore is the filesystem-backed Store.
//
// Directory layout:
//
//	<root>/<job_id>/running            presence marker, content = RFC3339 ts
//	<root>/<job_id>/paused             mutually exclusive with running
//	<root>/<job_id>/<action>_requested control request markers
//	<root>/<job_id>/job.json           descriptor written at Register
//	<root>/<job_id>/result.json        terminal record written by Finalize
//
// Marker creation and deletion are single atomic filesystem operations, and
// the running/paused flip is a rename, so concurrent Request calls from
// other processes are either fully visible to a Checkpoint or deferred to
// the next one. The in-process mutex serializes the owner's own
// read-modify-consume sequence.
type FSStore struct {
	root string
	mu   sync.Mutex
}

var _ Store = (*FSStore)(nil)

func NewFSStore(root string) *FSStore {
	return &FSStore{root: strings.TrimSpace(root)}
}

func (s *FSStore) RootDir() string {
	return s.root
}

func (s *FSStore) jobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

// descriptorRecord is the persistent form of job.json.
type descriptorRecord struct {
	JobID      string            `json:"job_id"`
	Descriptor map[string]string `json:"source_descriptor,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	PID        int               `json:"pid,omitempty"`
}

// resultRecord is the persistent form of result.json.
type resultRecord struct {
	State      State     `json:"state"`
	FinishedAt time.Time `json:"finished_at"`
	Result     Result    `json:"result"`
}

func (s *FSStore) Register(jobID string, descriptor map[string]string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("signal store root dir is empty")
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create signal root: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobDir := s.jobDir(jobID)
	if err := os.Mkdir(jobDir, 0755); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("job %s: %w", jobID, ErrAlreadyExists)
		}
		return fmt.Errorf("create job dir: %w", err)
	}

	now := time.Now().UTC()
	rec := descriptorRecord{
		JobID:      jobID,
		Descriptor: descriptor,
		StartedAt:  now,
		PID:        os.Getpid(),
	}
	if err := writeJSONAtomic(jobDir, descriptorFile, rec); err != nil {
		return err
	}
	return createMarker(jobDir, markerRunning, now)
}

func (s *FSStore) Request(jobID string, action Action) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobDir := s.jobDir(jobID)
	if !markerExists(jobDir, markerRunning) && !markerExists(jobDir, markerPaused) {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	path := filepath.Join(jobDir, requestMarker(action))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			// Unconsumed request of the same action: silent no-op.
			return nil
		}
		return fmt.Errorf("create %s marker: %w", requestMarker(action), err)
	}
	_, werr := f.WriteString(time.Now().UTC().Format(time.RFC3339Nano) + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return werr
	}

	// The store mutex does not span processes: a finalize in another
	// process can land between the liveness check and the create above,
	// stranding the request marker in a terminal job dir. Re-check, and
	// take the marker back out if the job is no longer live.
	if !markerExists(jobDir, markerRunning) && !markerExists(jobDir, markerPaused) {
		_ = os.Remove(path)
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

func (s *FSStore) Checkpoint(jobID string) (Action, error) {
	if err := validateJobID(jobID); err != nil {
		return ActionNone, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobDir := s.jobDir(jobID)
	running := markerExists(jobDir, markerRunning)
	paused := markerExists(jobDir, markerPaused)
	if !running && !paused {
		return ActionNone, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	// Cancel always outranks pause/resume.
	if markerExists(jobDir, requestMarker(ActionCancel)) {
		if err := os.Remove(filepath.Join(jobDir, requestMarker(ActionCancel))); err != nil {
			return ActionNone, fmt.Errorf("consume cancel marker: %w", err)
		}
		return ActionCancel, nil
	}

	if running && markerExists(jobDir, requestMarker(ActionPause)) {
		if err := flipMarker(jobDir, markerRunning, markerPaused); err != nil {
			return ActionNone, err
		}
		if err := os.Remove(filepath.Join(jobDir, requestMarker(ActionPause))); err != nil {
			return ActionNone, fmt.Errorf("consume pause marker: %w", err)
		}
		return ActionPause, nil
	}

	if paused && markerExists(jobDir, requestMarker(ActionResume)) {
		if err := flipMarker(jobDir, markerPaused, markerRunning); err != nil {
			return ActionNone, err
		}
		if err := os.Remove(filepath.Join(jobDir, requestMarker(ActionResume))); err != nil {
			return ActionNone, fmt.Errorf("consume resume marker: %w", err)
		}
		return ActionResume, nil
	}

	return ActionNone, nil
}

func (s *FSStore) Finalize(jobID string, state State, result Result) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if !state.Terminal() {
		return fmt.Errorf("state %s: %w", state, ErrNotTerminal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobDir := s.jobDir(jobID)
	if !markerExists(jobDir, markerRunning) && !markerExists(jobDir, markerPaused) {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	rec := resultRecord{
		State:      state,
		FinishedAt: time.Now().UTC(),
		Result:     result,
	}
	if err := writeJSONAtomic(jobDir, resultFile, rec); err != nil {
		return err
	}

	// Clear the active marker and any request the runner never consumed.
	for _, name := range []string{
		markerRunning,
		markerPaused,
		requestMarker(ActionPause),
		requestMarker(ActionResume),
		requestMarker(ActionCancel),
	} {
		if err := os.Remove(filepath.Join(jobDir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s marker: %w", name, err)
		}
	}
	return nil
}

func (s *FSStore) Get(jobID string) (*Summary, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}

	jobDir := s.jobDir(jobID)
	if _, err := os.Stat(jobDir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("stat job dir: %w", err)
	}
	return s.summarize(jobID)
}

func (s *FSStore) List(filter ListFilter) ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read signal root: %w", err)
	}

	out := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sum, err := s.summarize(entry.Name())
		if err != nil {
			continue
		}
		if filter.matches(sum.State) {
			out = append(out, *sum)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (s *FSStore) Remove(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.jobDir(jobID))
}

// summarize derives a Summary from a job directory's markers.
func (s *FSStore) summarize(jobID string) (*Summary, error) {
	jobDir := s.jobDir(jobID)

	var desc descriptorRecord
	if err := readJSON(filepath.Join(jobDir, descriptorFile), &desc); err != nil {
		return nil, err
	}

	sum := &Summary{
		JobID:      jobID,
		Descriptor: desc.Descriptor,
		StartedAt:  desc.StartedAt,
	}

	switch {
	case markerExists(jobDir, markerRunning):
		sum.State = StateRunning
		// Zombie detection: a running marker whose owner pid is gone means
		// the runner died without finalizing.
		if desc.PID > 0 && !isProcessAlive(desc.PID) {
			sum.State = StateUnknown
		}
	case markerExists(jobDir, markerPaused):
		sum.State = StatePaused
	default:
		var res resultRecord
		if err := readJSON(filepath.Join(jobDir, resultFile), &res); err != nil {
			sum.State = StateUnknown
			return sum, nil
		}
		sum.State = res.State
		finished := res.FinishedAt
		sum.FinishedAt = &finished
		r := res.Result
		sum.Result = &r
	}
	return sum, nil
}

func validateJobID(jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if strings.ContainsAny(jobID, "/\\") || jobID == "." || jobID == ".." {
		return fmt.Errorf("invalid job_id: %q", jobID)
	}
	return nil
}

func markerExists(jobDir, name string) bool {
	_, err := os.Stat(filepath.Join(jobDir, name))
	return err == nil
}

func createMarker(jobDir, name string, ts time.Time) error {
	path := filepath.Join(jobDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create %s marker: %w", name, err)
	}
	_, werr := f.WriteString(ts.Format(time.RFC3339Nano) + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

// flipMarker renames one state marker to another. Rename is atomic, so an
// observer never sees both (or neither) of running/paused.
func flipMarker(jobDir, from, to string) error {
	if err := os.Rename(filepath.Join(jobDir, from), filepath.Join(jobDir, to)); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	return nil
}

func writeJSONAtomic(dir, name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without sending a signal.
	if err := p.Signal(os.Signal(syscall.Signal(0))); err != nil {
		return false
	}
	return true
}
