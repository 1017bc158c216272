// Package audit provides export of the dispatch audit trail.
package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

// ExportFormat defines the output format for exports.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat parses a string to ExportFormat.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch s {
	case "json":
		return ExportJSON, true
	case "csv":
		return ExportCSV, true
	default:
		return "", false
	}
}

// Exporter streams audit records to a writer in the configured format.
type Exporter struct {
	format ExportFormat
	writer io.Writer
}

// NewExporter creates an exporter for the given format.
func NewExporter(format ExportFormat, w io.Writer) *Exporter {
	return &Exporter{
		format: format,
		writer: w,
	}
}

// Export streams all records matching the filter without materializing
// the full result set.
func (e *Exporter) Export(ctx context.Context, repo storage.AuditRepository, filter storage.AuditFilter) error {
	switch e.format {
	case ExportCSV:
		return e.exportCSV(ctx, repo, filter)
	default:
		return e.exportJSON(ctx, repo, filter)
	}
}

func (e *Exporter) exportCSV(ctx context.Context, repo storage.AuditRepository, filter storage.AuditFilter) error {
	w := csv.NewWriter(e.writer)
	defer w.Flush()

	// Header
	w.Write([]string{"id", "asset_id", "asset_label", "recipient", "class", "status", "error_detail", "sent_at"})

	err := repo.Stream(ctx, filter, func(rec *models.AuditRecord) error {
		return w.Write([]string{
			rec.ID,
			rec.AssetID,
			rec.AssetLabel,
			rec.Recipient,
			string(rec.Class),
			string(rec.Status),
			rec.ErrorDetail,
			rec.SentAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		return err
	}
	return w.Error()
}

func (e *Exporter) exportJSON(ctx context.Context, repo storage.AuditRepository, filter storage.AuditFilter) error {
	encoder := json.NewEncoder(e.writer)
	e.writer.Write([]byte("[\n"))
	first := true
	err := repo.Stream(ctx, filter, func(rec *models.AuditRecord) error {
		if !first {
			e.writer.Write([]byte(",\n"))
		}
		first = false
		return encoder.Encode(rec)
	})
	if err != nil {
		return err
	}
	e.writer.Write([]byte("\n]\n"))
	return nil
}
