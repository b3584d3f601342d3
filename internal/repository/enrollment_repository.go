package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gurukul-lms/gurukul-api/internal/models"
)

const enrollmentColumns = `id, user_id, course_id, enrolled_at, last_accessed_at, progress, completed_lectures, status, version, completed_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByUserAndCourse returns the enrollment of userID in courseID.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListByUser returns the user's enrollments, most recently accessed first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY last_accessed_at DESC, enrolled_at DESC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return enrollments, nil
}

// Create inserts a new enrollment at version 1. A second enrollment for the
// same user and course yields ErrDuplicate.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.LastAccessedAt.IsZero() {
		enrollment.LastAccessedAt = enrollment.EnrolledAt
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	if enrollment.CompletedLectures == nil {
		enrollment.CompletedLectures = models.CompletedLectures{}
	}
	enrollment.Version = 1

	const query = `INSERT INTO enrollments (id, user_id, course_id, enrolled_at, last_accessed_at, progress, completed_lectures, status, version, completed_at)
        VALUES (:id, :user_id, :course_id, :enrolled_at, :last_accessed_at, :progress, :completed_lectures, :status, :version, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateVersioned writes progress, status and access time when the stored
// version still equals expectedVersion, then bumps the version. A stale
// version yields ErrVersionConflict.
func (r *EnrollmentRepository) UpdateVersioned(ctx context.Context, enrollment *models.Enrollment, expectedVersion int) error {
	const query = `UPDATE enrollments
        SET completed_lectures = $3, progress = $4, status = $5, last_accessed_at = $6, completed_at = $7, version = version + 1
        WHERE id = $1 AND version = $2
        RETURNING version`
	var version int
	err := r.db.GetContext(ctx, &version, query,
		enrollment.ID,
		expectedVersion,
		enrollment.CompletedLectures,
		enrollment.Progress,
		enrollment.Status,
		enrollment.LastAccessedAt,
		enrollment.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVersionConflict
		}
		return fmt.Errorf("update enrollment: %w", err)
	}
	enrollment.Version = version
	return nil
}

// TouchLastAccessed bumps the access timestamp without changing the version.
func (r *EnrollmentRepository) TouchLastAccessed(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE enrollments SET last_accessed_at = $2 WHERE id = $1 AND last_accessed_at < $2`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("touch enrollment: %w", err)
	}
	return nil
}

// ListForExport joins enrollments with users and courses. Enrollments whose
// course was deleted are skipped.
func (r *EnrollmentRepository) ListForExport(ctx context.Context, courseID *string) ([]models.EnrollmentExportRow, error) {
	query := `SELECT e.id AS enrollment_id, e.user_id, u.full_name AS student_name, u.email AS student_email,
        e.course_id, c.title AS course_title, e.progress, e.status, e.enrolled_at, e.last_accessed_at, e.completed_at
        FROM enrollments e
        JOIN users u ON u.id = e.user_id
        JOIN courses c ON c.id = e.course_id`
	var args []interface{}
	if courseID != nil && *courseID != "" {
		query += ` WHERE e.course_id = $1`
		args = append(args, *courseID)
	}
	query += ` ORDER BY c.title, u.full_name`

	var rows []models.EnrollmentExportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments for export: %w", err)
	}
	return rows, nil
}
