package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/pkg/export"
	"github.com/gurukul-lms/gurukul-api/pkg/storage"
)

type exportSource interface {
	ListForExport(ctx context.Context, courseID *string) ([]models.EnrollmentExportRow, error)
}

type exportCourseLister interface {
	ListAll(ctx context.Context) ([]models.Course, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       export.Format
	ExpiresAt    time.Time
}

// ExportService builds enrollment datasets and persists rendered files.
type ExportService struct {
	source  exportSource
	courses exportCourseLister
	storage fileStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(source exportSource, courses exportCourseLister, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		source:  source,
		courses: courses,
		storage: store,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the dataset for job, renders it and stores the document.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	format, err := export.ParseFormat(job.Params.Format)
	if err != nil {
		return nil, err
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := export.RendererFor(format).Render(dataset, title)
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", format, err)
	}

	relPath, err := s.storage.Save(s.buildFilename(job, format), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured result TTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob, format export.Format) string {
	scope := "all"
	if job.Params.CourseID != nil && *job.Params.CourseID != "" {
		scope = sanitizeFilename(*job.Params.CourseID)
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", job.Type, scope, s.now().Format("20060102_150405"), job.ID, format.Extension())
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ExportTypeEnrollmentProgress:
		return s.buildProgressDataset(ctx, job.Params)
	case models.ExportTypeCourseCompletion:
		return s.buildCompletionDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export type %s", job.Type)
	}
}

func (s *ExportService) buildProgressDataset(ctx context.Context, params models.ExportParams) (export.Dataset, string, error) {
	rows, err := s.source.ListForExport(ctx, params.CourseID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	headers := []string{"Student", "Email", "Course", "Progress (%)", "Status", "Enrolled At", "Last Accessed", "Completed At"}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Student":       row.StudentName,
			"Email":         row.StudentEmail,
			"Course":        row.CourseTitle,
			"Progress (%)":  fmt.Sprintf("%d", row.Progress),
			"Status":        string(row.Status),
			"Enrolled At":   formatExportTime(&row.EnrolledAt),
			"Last Accessed": formatExportTime(&row.LastAccessedAt),
			"Completed At":  formatExportTime(row.CompletedAt),
		})
	}
	return export.Dataset{Headers: headers, Rows: dataRows}, "Enrollment Progress", nil
}

type completionTotals struct {
	title       string
	enrollments int
	completed   int
	progressSum int
}

func (s *ExportService) buildCompletionDataset(ctx context.Context, params models.ExportParams) (export.Dataset, string, error) {
	rows, err := s.source.ListForExport(ctx, params.CourseID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	totals := make(map[string]*completionTotals)
	if s.courses != nil {
		courses, err := s.courses.ListAll(ctx)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, c := range courses {
			if params.CourseID != nil && *params.CourseID != "" && c.ID != *params.CourseID {
				continue
			}
			totals[c.ID] = &completionTotals{title: c.Title}
		}
	}
	for _, row := range rows {
		t, ok := totals[row.CourseID]
		if !ok {
			t = &completionTotals{title: row.CourseTitle}
			totals[row.CourseID] = t
		}
		t.enrollments++
		t.progressSum += row.Progress
		if row.Status == models.EnrollmentStatusCompleted {
			t.completed++
		}
	}

	ordered := make([]*completionTotals, 0, len(totals))
	for _, t := range totals {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].title < ordered[j].title })

	headers := []string{"Course", "Enrollments", "Completed", "Completion Rate (%)", "Average Progress (%)"}
	dataRows := make([]map[string]string, 0, len(ordered))
	for _, t := range ordered {
		var rate, avg float64
		if t.enrollments > 0 {
			rate = 100 * float64(t.completed) / float64(t.enrollments)
			avg = float64(t.progressSum) / float64(t.enrollments)
		}
		dataRows = append(dataRows, map[string]string{
			"Course":               t.title,
			"Enrollments":          fmt.Sprintf("%d", t.enrollments),
			"Completed":            fmt.Sprintf("%d", t.completed),
			"Completion Rate (%)":  fmt.Sprintf("%.1f", rate),
			"Average Progress (%)": fmt.Sprintf("%.1f", avg),
		})
	}
	return export.Dataset{Headers: headers, Rows: dataRows}, "Course Completion", nil
}

func formatExportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
