package dto

import (
	"time"

	"github.com/gurukul-lms/gurukul-api/internal/models"
)

// EnrollRequest captures POST /student/courses/enrolled.
type EnrollRequest struct {
	CourseID string `json:"courseId" validate:"required"`
}

// EnrollmentStatusRequest captures PATCH /student/courses/enrolled/:courseId.
type EnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=active paused"`
}

// EnrolledCourse is one row of the student's enrolled list. Progress is
// derived from the course tree on every read.
type EnrolledCourse struct {
	EnrollmentID        string                  `json:"enrollmentId"`
	Course              models.CourseSummary    `json:"course"`
	TotalLectures       int                     `json:"totalLectures"`
	CompletedLectures   int                     `json:"completedLectures"`
	CompletedLectureIDs []string                `json:"completedLectureIds"`
	Progress            int                     `json:"progress"`
	Status              models.EnrollmentStatus `json:"status"`
	EnrolledAt          time.Time               `json:"enrolledAt"`
	LastAccessedAt      time.Time               `json:"lastAccessedAt"`
	LastAccessed        string                  `json:"lastAccessed"`
	Version             int                     `json:"version"`
}
