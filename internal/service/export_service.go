package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/fields"
	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
	"github.com/formlane/forms-api/pkg/export"
	"github.com/formlane/forms-api/pkg/storage"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

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

type exportResultRepository interface {
	List(ctx context.Context, filter models.ResultFilter) ([]models.Result, int, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled   bool
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string    `json:"relative_path"`
	Token        string    `json:"token"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	RowCount     int       `json:"row_count"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExportService renders a form's result set to CSV or PDF and hands back a
// signed, expiring download URL.
type ExportService struct {
	forms    formRepository
	fieldSrc submissionFieldRepository
	results  exportResultRepository
	values   formValueRepository
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(forms formRepository, fieldSrc submissionFieldRepository, results exportResultRepository, values formValueRepository, store fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		forms:    forms,
		fieldSrc: fieldSrc,
		results:  results,
		values:   values,
		storage:  store,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		signer:   signer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate renders every approved submission of the form to the requested
// format and stores the file for signed download.
func (s *ExportService) Generate(ctx context.Context, viewer models.Viewer, formID, format string) (*ExportResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrExportsDisabled, "exports are not enabled")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format "+format)
	}

	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
	}
	if !CanViewResults(viewer, form) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not export results of this form")
	}

	dataset, rowCount, err := s.buildDataset(ctx, viewer, form)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("%s_%s.%s", form.ID, time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(form.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.metrics.RecordExport(format)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		RowCount:     rowCount,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (formID, relPath string, expiresAt time.Time, err error) {
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

// Cleanup removes files older than ttl (defaults to configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// StartCleanup prunes expired export files on the given interval until ctx
// is cancelled.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Cleanup(0)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

// buildDataset flattens the form's submissions into a tabular dataset with
// one column per persistent field, resolved through the display pipeline.
func (s *ExportService) buildDataset(ctx context.Context, viewer models.Viewer, form *models.Form) (export.Dataset, int, error) {
	defs, err := s.fieldSrc.ListByForm(ctx, form.ID)
	if err != nil {
		return export.Dataset{}, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fields")
	}

	columns := []export.Column{
		{Key: "result_id", Label: "Result ID"},
		{Key: "submitted", Label: "Submitted"},
		{Key: "submitter", Label: "Submitter"},
		{Key: "ip", Label: "IP"},
	}
	fieldKeys := make(map[int64]string)
	for _, def := range defs {
		if !def.Enabled || def.Type == models.TypeStatic || !def.Type.Valid() {
			continue
		}
		columns = append(columns, export.Column{Key: def.Name, Label: def.Prompt})
		fieldKeys[def.ID] = def.Name
	}

	approved := true
	filter := models.ResultFilter{FormID: form.ID, Approved: &approved, PageSize: 100, SortBy: "result_id", SortOrder: "ASC"}
	admin := HasAdminAccess(viewer, form)
	if admin {
		filter.Approved = nil
	}

	var rows []map[string]string
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.results.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
		}

		for i := range batch {
			result := &batch[i]
			fieldSet := fields.Hydrate(defs)
			byID := make(map[int64]fields.Field, len(fieldSet))
			for _, f := range fieldSet {
				byID[f.Def().ID] = f
			}
			stored, err := s.values.MapByResult(ctx, result.ID)
			if err != nil {
				return export.Dataset{}, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load values")
			}
			for _, f := range fieldSet {
				if raw, ok := stored[f.Def().ID]; ok {
					f.SetValue(raw)
				}
			}

			submitter := result.UID
			if submitter == models.AnonymousUID {
				submitter = "anonymous"
			}
			row := map[string]string{
				"result_id": fmt.Sprintf("%d", result.ID),
				"submitted": result.SubmittedAt.UTC().Format(time.RFC3339),
				"submitter": submitter,
				"ip":        result.IP,
			}
			for defID, key := range fieldKeys {
				f, ok := byID[defID]
				if !ok {
					continue
				}
				value, visible := f.DisplayValue(fieldSet, !admin, viewer)
				if !visible {
					value = ""
				}
				row[key] = value
			}
			rows = append(rows, row)
		}

		if len(rows) >= total || len(batch) == 0 {
			break
		}
	}

	return export.Dataset{
		FormID:      form.ID,
		FormName:    form.Name,
		GeneratedAt: time.Now().UTC(),
		Columns:     columns,
		Rows:        rows,
	}, len(rows), nil
}
