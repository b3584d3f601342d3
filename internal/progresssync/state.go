package progresssync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gurukul-lms/gurukul-api/internal/models"
)

// CourseProgress is the locally known progress of one enrollment. Version is
// the server version the entry reflects, not counting pending ops.
type CourseProgress struct {
	CourseID            string                  `json:"courseId"`
	CompletedLectureIDs []string                `json:"completedLectureIds"`
	TotalLectures       int                     `json:"totalLectures"`
	Progress            int                     `json:"progress"`
	Status              models.EnrollmentStatus `json:"status"`
	Version             int                     `json:"version"`
	Stale               bool                    `json:"stale,omitempty"`
	// LectureIDs is the lecture set of the course as last seen by a local
	// toggle. It is trusted only while it matches TotalLectures.
	LectureIDs []string `json:"lectureIds,omitempty"`
}

// recount keeps completed ids that belong to the known lecture set, then
// derives progress and status from them.
func (p *CourseProgress) recount() {
	if len(p.LectureIDs) > 0 && len(p.LectureIDs) == p.TotalLectures {
		p.CompletedLectureIDs = models.KeepKnown(p.CompletedLectureIDs, p.LectureIDs)
	}
	p.Progress = models.ComputeProgress(len(p.CompletedLectureIDs), p.TotalLectures)
	p.Status = models.StatusFor(p.Status, p.Progress)
}

// PendingOp is a toggle applied locally and not yet acknowledged by the server.
type PendingOp struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	LectureID string    `json:"lectureId"`
	Completed bool      `json:"completed"`
	QueuedAt  time.Time `json:"queuedAt"`
}

// State is everything the client persists between runs.
type State struct {
	Courses              map[string]*CourseProgress `json:"courses"`
	Pending              []PendingOp                `json:"pending"`
	ReadNotifications    map[string]bool            `json:"readNotifications"`
	DeletedNotifications map[string]bool            `json:"deletedNotifications"`
	LastSync             time.Time                  `json:"lastSync"`
}

// NewState returns an empty state with initialized maps.
func NewState() *State {
	s := &State{}
	s.normalize()
	return s
}

func (s *State) normalize() {
	if s.Courses == nil {
		s.Courses = map[string]*CourseProgress{}
	}
	if s.ReadNotifications == nil {
		s.ReadNotifications = map[string]bool{}
	}
	if s.DeletedNotifications == nil {
		s.DeletedNotifications = map[string]bool{}
	}
}

func (s *State) clone() *State {
	raw, _ := json.Marshal(s)
	out := &State{}
	_ = json.Unmarshal(raw, out)
	out.normalize()
	return out
}

// Store persists the client state.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// FileStore keeps the state as a JSON document on disk. Saves write a sibling
// temp file and rename it over the target so readers never see a torn file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads the state; a missing file yields an empty state.
func (s *FileStore) Load(ctx context.Context) (*State, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	state := &State{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.path, err)
	}
	state.normalize()
	return state, nil
}

// Save writes the state atomically.
func (s *FileStore) Save(ctx context.Context, state *State) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	mu    sync.Mutex
	state *State
	saves int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: NewState()}
}

// Load returns a copy of the stored state.
func (s *MemoryStore) Load(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone(), nil
}

// Save replaces the stored state with a copy of state.
func (s *MemoryStore) Save(ctx context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.clone()
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
