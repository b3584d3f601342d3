package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportType enumerates the asynchronous export datasets.
type ExportType string

const (
	ExportTypeEnrollmentProgress ExportType = "enrollment_progress"
	ExportTypeCourseCompletion   ExportType = "course_completion"
)

// Valid reports whether t is a supported export type.
func (t ExportType) Valid() bool {
	return t == ExportTypeEnrollmentProgress || t == ExportTypeCourseCompletion
}

// ExportStatus captures the background job lifecycle.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is persisted export job metadata.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	Type         ExportType   `db:"type" json:"type"`
	Params       ExportParams `db:"params" json:"params"`
	Status       ExportStatus `db:"status" json:"status"`
	Progress     int          `db:"progress" json:"progress"`
	ResultURL    *string      `db:"result_url" json:"resultUrl,omitempty"`
	CreatedBy    string       `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finishedAt,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"errorMessage,omitempty"`
}

// ExportParams stores request options as JSONB.
type ExportParams struct {
	CourseID *string `json:"courseId,omitempty"`
	Format   string  `json:"format"`
	// File is the storage-relative path of the rendered document.
	File string `json:"file,omitempty"`
}

// Value marshals params for persistence.
func (p ExportParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB into params.
func (p *ExportParams) Scan(value interface{}) error {
	data, err := jsonBytes(value, "ExportParams")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*p = ExportParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export params: %w", err)
	}
	return nil
}

// EnrollmentExportRow is one joined row feeding the export datasets.
type EnrollmentExportRow struct {
	EnrollmentID   string           `db:"enrollment_id"`
	UserID         string           `db:"user_id"`
	StudentName    string           `db:"student_name"`
	StudentEmail   string           `db:"student_email"`
	CourseID       string           `db:"course_id"`
	CourseTitle    string           `db:"course_title"`
	Progress       int              `db:"progress"`
	Status         EnrollmentStatus `db:"status"`
	EnrolledAt     time.Time        `db:"enrolled_at"`
	LastAccessedAt time.Time        `db:"last_accessed_at"`
	CompletedAt    *time.Time       `db:"completed_at"`
}
