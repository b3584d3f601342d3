package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Lecture is the leaf of a course tree.
type Lecture struct {
	ID              string  `json:"id"`
	Title           string  `json:"title" validate:"required"`
	Content         string  `json:"content"`
	VideoURL        *string `json:"videoUrl,omitempty" validate:"omitempty,url"`
	DurationMinutes *int    `json:"durationMinutes,omitempty" validate:"omitempty,min=0"`
}

// Chapter groups lectures inside a section.
type Chapter struct {
	ID       string    `json:"id"`
	Title    string    `json:"title" validate:"required"`
	Lectures []Lecture `json:"lectures" validate:"dive"`
}

// Section is the top level grouping of a course.
type Section struct {
	ID       string    `json:"id"`
	Title    string    `json:"title" validate:"required"`
	Chapters []Chapter `json:"chapters" validate:"dive"`
}

// Sections is the ordered course tree stored as JSONB.
type Sections []Section

// Course is an admin authored course with its full content tree.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Thumbnail   string    `db:"thumbnail" json:"thumbnail"`
	Sections    Sections  `db:"sections" json:"sections"`
	CreatedBy   *string   `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// CourseSummary is the catalog view of a course without lecture content.
type CourseSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Thumbnail     string `json:"thumbnail"`
	TotalLectures int    `json:"totalLectures"`
}

// CourseFilter narrows catalog listings.
type CourseFilter struct {
	Search   string
	Page     int
	PageSize int
}

// LectureLocation is a lecture resolved inside its course tree.
type LectureLocation struct {
	Lecture       Lecture
	SectionID     string
	SectionTitle  string
	ChapterID     string
	ChapterTitle  string
	PrevLectureID string
	NextLectureID string
}

// LectureIndexEntry is one row of the lecture to course index.
type LectureIndexEntry struct {
	LectureID string `db:"lecture_id"`
	CourseID  string `db:"course_id"`
	SectionID string `db:"section_id"`
	ChapterID string `db:"chapter_id"`
}

// TotalLectures counts every lecture in the tree.
func (c *Course) TotalLectures() int {
	total := 0
	for _, s := range c.Sections {
		for _, ch := range s.Chapters {
			total += len(ch.Lectures)
		}
	}
	return total
}

// FindLecture returns the first lecture with the given id in tree order.
func (c *Course) FindLecture(lectureID string) (LectureLocation, bool) {
	var (
		loc   LectureLocation
		found bool
		prev  string
	)
	c.walk(func(s *Section, ch *Chapter, l *Lecture) bool {
		if found {
			loc.NextLectureID = l.ID
			return false
		}
		if l.ID == lectureID {
			loc = LectureLocation{
				Lecture:       *l,
				SectionID:     s.ID,
				SectionTitle:  s.Title,
				ChapterID:     ch.ID,
				ChapterTitle:  ch.Title,
				PrevLectureID: prev,
			}
			found = true
			return true
		}
		prev = l.ID
		return true
	})
	return loc, found
}

// LectureIDs lists lecture ids in tree order.
func (c *Course) LectureIDs() []string {
	ids := make([]string, 0, c.TotalLectures())
	c.walk(func(_ *Section, _ *Chapter, l *Lecture) bool {
		ids = append(ids, l.ID)
		return true
	})
	return ids
}

// IndexEntries returns the lecture index rows describing this course.
func (c *Course) IndexEntries() []LectureIndexEntry {
	entries := make([]LectureIndexEntry, 0, c.TotalLectures())
	c.walk(func(s *Section, ch *Chapter, l *Lecture) bool {
		entries = append(entries, LectureIndexEntry{LectureID: l.ID, CourseID: c.ID, SectionID: s.ID, ChapterID: ch.ID})
		return true
	})
	return entries
}

// AssignIDs fills empty node ids using newID.
func (c *Course) AssignIDs(newID func() string) {
	for i := range c.Sections {
		s := &c.Sections[i]
		if s.ID == "" {
			s.ID = newID()
		}
		for j := range s.Chapters {
			ch := &s.Chapters[j]
			if ch.ID == "" {
				ch.ID = newID()
			}
			for k := range ch.Lectures {
				if ch.Lectures[k].ID == "" {
					ch.Lectures[k].ID = newID()
				}
			}
		}
	}
}

// DuplicateLectureID reports the first lecture id used more than once.
func (c *Course) DuplicateLectureID() (string, bool) {
	seen := make(map[string]struct{}, c.TotalLectures())
	for _, id := range c.LectureIDs() {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}

// ProgressFor derives progress from completed ids, ignoring ids that are not
// lectures of this course.
func (c *Course) ProgressFor(completedIDs []string) ProgressSnapshot {
	completed := len(c.CompletedIn(completedIDs))
	total := c.TotalLectures()
	return ProgressSnapshot{Completed: completed, Total: total, Percentage: ComputeProgress(completed, total)}
}

// CompletedIn keeps the ids that name a lecture of this course. Ids of
// lectures removed from the tree are dropped.
func (c *Course) CompletedIn(ids []string) []string {
	return KeepKnown(ids, c.LectureIDs())
}

// Summary strips lecture content from the course.
func (c *Course) Summary() CourseSummary {
	return CourseSummary{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		Thumbnail:     c.Thumbnail,
		TotalLectures: c.TotalLectures(),
	}
}

// walk visits lectures in order until fn returns false.
func (c *Course) walk(fn func(*Section, *Chapter, *Lecture) bool) {
	for i := range c.Sections {
		s := &c.Sections[i]
		for j := range s.Chapters {
			ch := &s.Chapters[j]
			for k := range ch.Lectures {
				if !fn(s, ch, &ch.Lectures[k]) {
					return
				}
			}
		}
	}
}

// Value marshals the tree for a JSONB column.
func (s Sections) Value() (driver.Value, error) {
	if s == nil {
		s = Sections{}
	}
	data, err := json.Marshal([]Section(s))
	if err != nil {
		return nil, fmt.Errorf("marshal course sections: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB column into the tree.
func (s *Sections) Scan(value interface{}) error {
	data, err := jsonBytes(value, "Sections")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = Sections{}
		return nil
	}
	var out []Section
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal course sections: %w", err)
	}
	*s = out
	return nil
}

func jsonBytes(value interface{}, typeName string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T for %s", value, typeName)
	}
}
