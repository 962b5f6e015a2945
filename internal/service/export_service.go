package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/models"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
	"github.com/scout-hq/scout-api/pkg/export"
	"github.com/scout-hq/scout-api/pkg/storage"
)

type auditLogLister interface {
	ListAuditLogs(ctx context.Context, since time.Time, limit int) ([]models.AuditLog, error)
}

// AuditExportResult describes a rendered export and how to fetch it.
type AuditExportResult struct {
	ExportID      string    `json:"export_id"`
	Entries       int       `json:"entries"`
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// AuditExportService renders the audit trail to CSV files on disk and hands
// out signed, time-limited download tokens for them.
type AuditExportService struct {
	repo   auditLogLister
	store  *storage.ExportStore
	signer *storage.DownloadSigner
	logger *zap.Logger
}

// NewAuditExportService constructs the service.
func NewAuditExportService(repo auditLogLister, store *storage.ExportStore, signer *storage.DownloadSigner, logger *zap.Logger) *AuditExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditExportService{repo: repo, store: store, signer: signer, logger: logger}
}

// Export renders audit entries since the given time into a CSV file and
// returns a signed download token for it.
func (s *AuditExportService) Export(ctx context.Context, since time.Time, limit int) (*AuditExportResult, error) {
	entries, err := s.repo.ListAuditLogs(ctx, since, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}

	table := export.Table{
		Columns: []string{"id", "user_id", "action", "resource", "resource_id", "ip_address", "user_agent", "created_at", "details"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, e := range entries {
		table.Rows = append(table.Rows, []string{
			e.ID,
			deref(e.UserID),
			e.Action,
			e.Resource,
			deref(e.ResourceID),
			e.IPAddress,
			e.UserAgent,
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.NewValues),
		})
	}

	data, err := export.CSV(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("audit-%s.csv", exportID)
	if err := s.store.Save(filename, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Sign(exportID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	s.logger.Info("audit export created",
		zap.String("export_id", exportID),
		zap.Int("entries", len(entries)),
	)

	return &AuditExportResult{
		ExportID:      exportID,
		Entries:       len(entries),
		DownloadToken: token,
		ExpiresAt:     expiresAt,
	}, nil
}

// OpenDownload validates a signed token and opens the file it grants. The
// caller closes the handle.
func (s *AuditExportService) OpenDownload(token string) (*os.File, string, error) {
	_, filename, err := s.signer.Verify(token)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(filename)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	return file, filename, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
