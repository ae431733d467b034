package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-promotion-api/internal/dto"
	"github.com/noah-isme/sma-promotion-api/internal/models"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
	"github.com/noah-isme/sma-promotion-api/pkg/export"
	"github.com/noah-isme/sma-promotion-api/pkg/storage"
)

// Preview columns, in file order.
var previewHeaders = []string{"student_id", "student_name", "source_classification", "target_classification", "status"}

const (
	previewStatusStaged    = "staged"
	previewStatusCommitted = "committed"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type stagedReader interface {
	All(ctx context.Context, key models.SessionKey) ([]models.StagedPlacement, error)
}

// PreviewConfig tunes preview generation.
type PreviewConfig struct {
	APIPrefix string
	Retention time.Duration
}

// PreviewService writes read-only CSV snapshots of committed and staged placements.
type PreviewService struct {
	eligibility eligibilityIndex
	classes     classCatalog
	staged      stagedReader
	storage     fileStorage
	csv         csvRenderer
	signer      *storage.SignedURLSigner
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         PreviewConfig
}

// NewPreviewService constructs the service.
func NewPreviewService(eligibility eligibilityIndex, classes classCatalog, staged stagedReader, store fileStorage, csv csvRenderer, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg PreviewConfig) *PreviewService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &PreviewService{eligibility: eligibility, classes: classes, staged: staged, storage: store, csv: csv, signer: signer, metrics: metrics, logger: logger, cfg: cfg}
}

// Export writes a new preview file for key and returns a signed download link.
// Every call produces a distinct file.
func (s *PreviewService) Export(ctx context.Context, key models.SessionKey) (*dto.PreviewResult, error) {
	if key.SourceYearID == "" || key.TargetYearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "source and target school years are required")
	}
	dataset, err := s.dataset(ctx, key)
	if err != nil {
		return nil, err
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to render preview")
	}

	id := uuid.NewString()
	name := path.Join(key.SourceYearID+"-"+key.TargetYearID, fmt.Sprintf("promotion-preview-%s-%s.csv", time.Now().UTC().Format("20060102T150405"), id))
	relPath, err := s.storage.Save(name, payload)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to store preview")
	}

	result := &dto.PreviewResult{FileName: path.Base(relPath), Rows: len(dataset.Rows)}
	if s.signer != nil {
		token, expiresAt, err := s.signer.Generate(id, relPath)
		if err != nil {
			return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to sign preview link")
		}
		result.Token = token
		result.ExpiresAt = expiresAt
		result.DownloadURL = strings.TrimRight(s.cfg.APIPrefix, "/") + "/promotions/previews/" + token
	}
	s.metrics.RecordPreview()
	s.logger.Info("preview written", zap.String("session", key.String()), zap.String("file", relPath), zap.Int("rows", result.Rows))
	return result, nil
}

func (s *PreviewService) dataset(ctx context.Context, key models.SessionKey) (export.Dataset, error) {
	roster, err := s.eligibility.RosterIndex(ctx, key.SourceYearID)
	if err != nil {
		return export.Dataset{}, err
	}
	committed, err := s.eligibility.CommittedIndex(ctx, key.TargetYearID)
	if err != nil {
		return export.Dataset{}, err
	}
	staged, err := s.staged.All(ctx, key)
	if err != nil {
		return export.Dataset{}, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to read staging workspace")
	}
	classList, err := s.classes.ListByYear(ctx, key.TargetYearID)
	if err != nil {
		return export.Dataset{}, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to list target classes")
	}
	classes := make(map[string]models.Classification, len(classList))
	for _, class := range classList {
		classes[class.ID] = class.Classification
	}

	type previewRow struct {
		status string
		name   string
		values map[string]string
	}
	row := func(studentID, classID, status string) previewRow {
		student := roster[studentID]
		return previewRow{status: status, name: student.StudentName, values: map[string]string{
			"student_id":            studentID,
			"student_name":          student.StudentName,
			"source_classification": student.Classification.String(),
			"target_classification": classes[classID].String(),
			"status":                status,
		}}
	}

	rows := make([]previewRow, 0, len(committed)+len(staged))
	for studentID, placement := range committed {
		if _, ok := roster[studentID]; !ok {
			continue
		}
		rows = append(rows, row(studentID, placement.ClassID, previewStatusCommitted))
	}
	for _, placement := range staged {
		if _, done := committed[placement.StudentID]; done {
			continue
		}
		rows = append(rows, row(placement.StudentID, placement.ClassID, previewStatusStaged))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].status != rows[j].status {
			return rows[i].status == previewStatusCommitted
		}
		if rows[i].name != rows[j].name {
			return rows[i].name < rows[j].name
		}
		return rows[i].values["student_id"] < rows[j].values["student_id"]
	})

	dataset := export.Dataset{Headers: previewHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, r := range rows {
		dataset.Rows = append(dataset.Rows, r.values)
	}
	return dataset, nil
}

// OpenPreview resolves a signed token into an open preview file and its download name.
func (s *PreviewService) OpenPreview(token string) (*os.File, string, error) {
	if s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "preview downloads are disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.WrapWith(appErrors.ErrForbidden, err, "invalid or expired preview link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.WrapWith(appErrors.ErrNotFound, err, "preview not found")
	}
	return file, path.Base(relPath), nil
}

// Cleanup removes preview files older than the retention window.
func (s *PreviewService) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deleted, err := s.storage.CleanupOlderThan(s.cfg.Retention)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired previews removed", zap.Int("count", len(deleted)))
	}
	return len(deleted), nil
}
