package dto

import "github.com/gurukul-lms/gurukul-api/internal/models"

// ToggleLectureRequest captures PATCH /student/lectures/:lectureId.
type ToggleLectureRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

// ToggleLectureResponse reports the enrollment state after a toggle.
type ToggleLectureResponse struct {
	LectureID           string                  `json:"lectureId"`
	CourseID            string                  `json:"courseId"`
	Completed           bool                    `json:"completed"`
	CompletedLectures   int                     `json:"completedLectures"`
	CompletedLectureIDs []string                `json:"completedLectureIds"`
	TotalLectures       int                     `json:"totalLectures"`
	Progress            int                     `json:"progress"`
	Status              models.EnrollmentStatus `json:"status"`
	Version             int                     `json:"version"`
}

// LectureDetail is a lecture with its position in the course.
type LectureDetail struct {
	Lecture           models.Lecture          `json:"lecture"`
	CourseID          string                  `json:"courseId"`
	CourseTitle       string                  `json:"courseTitle"`
	SectionID         string                  `json:"sectionId"`
	SectionTitle      string                  `json:"sectionTitle"`
	ChapterID         string                  `json:"chapterId"`
	ChapterTitle      string                  `json:"chapterTitle"`
	IsCompleted       bool                    `json:"isCompleted"`
	Progress          models.ProgressSnapshot `json:"progress"`
	PreviousLectureID *string                 `json:"previousLectureId"`
	NextLectureID     *string                 `json:"nextLectureId"`
	Version           int                     `json:"version"`
}
