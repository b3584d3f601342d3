package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusPaused    EnrollmentStatus = "paused"
)

// CompletedLecture records when a lecture was marked complete.
type CompletedLecture struct {
	LectureID   string    `json:"lectureId"`
	CompletedAt time.Time `json:"completedAt"`
}

// CompletedLectures is stored as a JSONB array.
type CompletedLectures []CompletedLecture

// Enrollment is one user's relationship to one course.
type Enrollment struct {
	ID                string            `db:"id" json:"id"`
	UserID            string            `db:"user_id" json:"userId"`
	CourseID          string            `db:"course_id" json:"courseId"`
	EnrolledAt        time.Time         `db:"enrolled_at" json:"enrolledAt"`
	LastAccessedAt    time.Time         `db:"last_accessed_at" json:"lastAccessedAt"`
	Progress          int               `db:"progress" json:"progress"`
	CompletedLectures CompletedLectures `db:"completed_lectures" json:"completedLectures"`
	Status            EnrollmentStatus  `db:"status" json:"status"`
	Version           int               `db:"version" json:"version"`
	CompletedAt       *time.Time        `db:"completed_at" json:"completedAt,omitempty"`
}

// IDs returns the completed lecture ids in completion order.
func (c CompletedLectures) IDs() []string {
	ids := make([]string, len(c))
	for i, l := range c {
		ids[i] = l.LectureID
	}
	return ids
}

// Contains reports whether lectureID is completed.
func (c CompletedLectures) Contains(lectureID string) bool {
	for _, l := range c {
		if l.LectureID == lectureID {
			return true
		}
	}
	return false
}

// With returns the list with lectureID added. Existing entries are kept as is.
func (c CompletedLectures) With(lectureID string, at time.Time) CompletedLectures {
	if c.Contains(lectureID) {
		return c
	}
	out := make(CompletedLectures, len(c), len(c)+1)
	copy(out, c)
	return append(out, CompletedLecture{LectureID: lectureID, CompletedAt: at})
}

// Without returns the list with lectureID removed.
func (c CompletedLectures) Without(lectureID string) CompletedLectures {
	out := make(CompletedLectures, 0, len(c))
	for _, l := range c {
		if l.LectureID != lectureID {
			out = append(out, l)
		}
	}
	return out
}

// ApplyCompletion sets the completion state of one lecture and recomputes the
// derived fields against course. It reports whether the completed list changed.
func (e *Enrollment) ApplyCompletion(course *Course, lectureID string, completed bool, now time.Time) bool {
	before := len(e.CompletedLectures)
	if completed {
		e.CompletedLectures = e.CompletedLectures.With(lectureID, now)
	} else {
		e.CompletedLectures = e.CompletedLectures.Without(lectureID)
	}
	changed := len(e.CompletedLectures) != before

	snapshot := course.ProgressFor(e.CompletedLectures.IDs())
	e.Progress = snapshot.Percentage
	previous := e.Status
	e.Status = StatusFor(previous, snapshot.Percentage)
	switch {
	case e.Status == EnrollmentStatusCompleted && previous != EnrollmentStatusCompleted:
		e.CompletedAt = &now
	case e.Status != EnrollmentStatusCompleted:
		e.CompletedAt = nil
	}
	e.LastAccessedAt = now
	return changed
}

// Value marshals the list for a JSONB column.
func (c CompletedLectures) Value() (driver.Value, error) {
	if c == nil {
		c = CompletedLectures{}
	}
	data, err := json.Marshal([]CompletedLecture(c))
	if err != nil {
		return nil, fmt.Errorf("marshal completed lectures: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column.
func (c *CompletedLectures) Scan(value interface{}) error {
	data, err := jsonBytes(value, "CompletedLectures")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*c = CompletedLectures{}
		return nil
	}
	var out []CompletedLecture
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal completed lectures: %w", err)
	}
	*c = out
	return nil
}
