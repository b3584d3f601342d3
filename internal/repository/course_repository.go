package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gurukul-lms/gurukul-api/internal/models"
)

const courseColumns = `id, title, description, thumbnail, sections, created_by, created_at, updated_at`

// CourseRepository persists courses and keeps the lecture index in step with them.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course with its tree.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// ListByIDs batch loads courses. Missing ids are skipped.
func (r *CourseRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	if len(ids) == 0 {
		return []models.Course{}, nil
	}
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = ANY($1)`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list courses by ids: %w", err)
	}
	return courses, nil
}

// List pages the catalog ordered by newest first.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := `FROM courses`
	var args []interface{}
	if filter.Search != "" {
		base += ` WHERE LOWER(title) LIKE $1`
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	_, size, offset := normalizePage(filter.Page, filter.PageSize)

	var courses []models.Course
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", courseColumns, base, size, offset)
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// ListAll returns every course; used by reindexing and exports.
func (r *CourseRepository) ListAll(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses ORDER BY created_at`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list all courses: %w", err)
	}
	return courses, nil
}

// FindCourseIDByLecture resolves the owning course of a lecture via the index.
func (r *CourseRepository) FindCourseIDByLecture(ctx context.Context, lectureID string) (string, error) {
	const query = `SELECT course_id FROM lecture_index WHERE lecture_id = $1`
	var courseID string
	if err := r.db.GetContext(ctx, &courseID, query, lectureID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("find course by lecture: %w", err)
	}
	return courseID, nil
}

// Create inserts the course and its lecture index rows in one transaction.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO courses (id, title, description, thumbnail, sections, created_by, created_at, updated_at) VALUES (:id, :title, :description, :thumbnail, :sections, :created_by, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
			return fmt.Errorf("create course: %w", err)
		}
		return insertIndex(ctx, tx, course)
	})
}

// Update rewrites the course and its index rows.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		const query = `UPDATE courses SET title = :title, description = :description, thumbnail = :thumbnail, sections = :sections, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, query, course)
		if err != nil {
			return fmt.Errorf("update course: %w", err)
		}
		if err := expectOneRow(res, "update course"); err != nil {
			return err
		}
		return replaceIndex(ctx, tx, course)
	})
}

// Reindex rebuilds the index rows of one course.
func (r *CourseRepository) Reindex(ctx context.Context, course *models.Course) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		return replaceIndex(ctx, tx, course)
	})
}

// Delete removes the course; index rows cascade. Enrollments are left in place.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return expectOneRow(res, "delete course")
}

// Count returns the number of courses.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses`); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return total, nil
}

func (r *CourseRepository) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin course tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit course tx: %w", err)
	}
	return nil
}

func replaceIndex(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM lecture_index WHERE course_id = $1`, course.ID); err != nil {
		return fmt.Errorf("clear lecture index: %w", err)
	}
	return insertIndex(ctx, tx, course)
}

func insertIndex(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	entries := course.IndexEntries()
	if len(entries) == 0 {
		return nil
	}
	const query = `INSERT INTO lecture_index (lecture_id, course_id, section_id, chapter_id) VALUES (:lecture_id, :course_id, :section_id, :chapter_id)`
	if _, err := tx.NamedExecContext(ctx, query, entries); err != nil {
		if isUniqueViolation(err) {
			return ErrLectureIDTaken
		}
		return fmt.Errorf("insert lecture index: %w", err)
	}
	return nil
}
