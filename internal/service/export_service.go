package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
	"github.com/noah-isme/lti-assignments-api/pkg/export"
	"github.com/noah-isme/lti-assignments-api/pkg/storage"
)

// Grade sheet formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
)

var gradeSheetColumns = []export.Column{
	{Header: "User"},
	{Header: "Status"},
	{Header: "Score", Numeric: true},
	{Header: "LMS Score", Numeric: true},
	{Header: "Submitted At"},
	{Header: "Published At"},
}

const (
	scoreColumn    = 2
	lmsScoreColumn = 3
)

type gradeSource interface {
	GetScoped(ctx context.Context, id int64, consumerID, courseID string) (*models.Assignment, error)
}

type gradeSubmissionLister interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult describes a stored grade sheet.
type ExportResult struct {
	ID           string
	RelativePath string
	Token        string
	URL          string
	Format       string
	ExpiresAt    time.Time
}

// GradeExportService renders an assignment's grade sheet and hands out signed download links.
type GradeExportService struct {
	assignments gradeSource
	submissions gradeSubmissionLister
	storage     fileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	xlsx        xlsxRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewGradeExportService constructs the service. Nil renderers fall back to the pkg/export defaults.
func NewGradeExportService(assignments gradeSource, submissions gradeSubmissionLister, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *GradeExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &GradeExportService{
		assignments: assignments,
		submissions: submissions,
		storage:     store,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		xlsx:        export.NewXLSXExporter(),
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Export renders the grade sheet of a scoped assignment and stores it.
func (s *GradeExportService) Export(ctx context.Context, session models.Session, assignmentID int64, format string) (*ExportResult, error) {
	if !session.IsInstructor() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only instructors can export grades")
	}
	assignment, err := s.assignments.GetScoped(ctx, assignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	submissions, err := s.submissions.List(ctx, models.SubmissionFilter{AssignmentID: assignment.ID})
	if err != nil {
		return nil, internalError(err, "failed to list submissions")
	}
	dataset := buildGradeDataset(fmt.Sprintf("Grades: %s", assignment.Title), submissions)

	var payload []byte
	switch strings.ToLower(format) {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	case ExportFormatXLSX:
		payload, err = s.xlsx.Render(dataset, "Grades")
	default:
		return nil, validationError(fmt.Sprintf("unsupported format %s", format))
	}
	if err != nil {
		return nil, internalError(err, "failed to render grade sheet")
	}

	id := uuid.NewString()
	relPath, err := s.storage.Save(s.buildFilename(assignment, id, strings.ToLower(format)), payload)
	if err != nil {
		return nil, internalError(err, "failed to store grade sheet")
	}
	token, claims, err := s.signer.Sign(storage.DownloadToken{ExportID: id, AssignmentID: assignment.ID, Path: relPath})
	if err != nil {
		return nil, internalError(err, "failed to sign download link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Sugar().Infow("grade sheet exported", "assignment_id", assignment.ID, "format", format, "rows", len(dataset.Rows))
	return &ExportResult{
		ID:           id,
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download?token=%s", prefix, token),
		Format:       strings.ToLower(format),
		ExpiresAt:    claims.ExpiresAt,
	}, nil
}

// Open validates a download token and returns the stored file.
func (s *GradeExportService) Open(token string) (*os.File, error) {
	claims, err := s.signer.Verify(token)
	if errors.Is(err, storage.ErrExpiredToken) {
		return nil, appErrors.Wrap(err, appErrors.ErrExpired.Code, appErrors.ErrExpired.Status, "export link expired")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export not found")
	}
	file, err := s.storage.Open(claims.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export not found")
	}
	return file, nil
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *GradeExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (s *GradeExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Cleanup(0)
			if err != nil {
				s.logger.Sugar().Warnw("export cleanup failed", "error", err)
				continue
			}
			if len(removed) > 0 {
				s.logger.Sugar().Infow("export cleanup removed files", "count", len(removed))
			}
		}
	}
}

func (s *GradeExportService) buildFilename(assignment *models.Assignment, id, format string) string {
	return fmt.Sprintf("grades_%d_%s_%s.%s", assignment.ID, sanitizeFilename(assignment.Title), id, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 60 {
		return result[:60]
	}
	return result
}

func buildGradeDataset(title string, submissions []models.Submission) export.Dataset {
	sorted := append([]models.Submission(nil), submissions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })
	rows := make([][]string, 0, len(sorted))
	for _, sub := range sorted {
		rows = append(rows, []string{
			sub.UserID,
			string(sub.Status),
			formatScore(sub.Score),
			formatScore(sub.LMSScore),
			formatExportTime(sub.SubmittedAt),
			formatExportTime(sub.PublishedAt),
		})
	}
	dataset := export.Dataset{Title: title, Columns: gradeSheetColumns, Rows: rows}
	footer := make([]string, len(gradeSheetColumns))
	footer[0] = "Average"
	for _, idx := range []int{scoreColumn, lmsScoreColumn} {
		if mean, ok := dataset.Mean(idx); ok {
			footer[idx] = fmt.Sprintf("%.2f", mean)
		}
	}
	dataset.Footer = footer
	return dataset
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
