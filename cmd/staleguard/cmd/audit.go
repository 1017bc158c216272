package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/audit"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

var (
	auditFrom      string
	auditTo        string
	auditClass     string
	auditStatus    string
	auditRecipient string
	auditLimit     int
	auditOffset    int
	auditFormat    string
	auditOut       string
)

// auditCmd represents the audit command group
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the notification audit trail",
	Long: `Commands for querying the durable record of every delivery attempt.

Every send, failure, and digest is recorded with its recipient,
notification class, status, and timestamp. Records are append-only.

Examples:
  # Recent deliveries
  staleguard audit list

  # Failed escalations in a time range
  staleguard audit list --status failed --class escalated --from 2026-08-01

  # Everything sent to one recipient
  staleguard audit list --recipient alice@example.com

  # Bulk export for offline analysis
  staleguard audit export --format csv --out audit.csv`,
}

// auditListCmd lists audit records with filters and pagination
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records",
	Long: `List delivery audit records, newest first.

Filters combine with AND. Times accept RFC 3339 timestamps or plain
dates (2026-08-01, interpreted in the local timezone).

Examples:
  staleguard audit list --limit 20
  staleguard audit list --status failed --from 2026-08-01 --to 2026-08-15
  staleguard audit list --class digest -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := buildAuditFilter()
		if err != nil {
			return err
		}
		filter.Limit = auditLimit
		filter.Offset = auditOffset

		cfg, err := loadEngineConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		records, total, err := store.Audit().Query(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("query audit records: %w", err)
		}

		if GetOutput() == "json" {
			data, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return fmt.Errorf("encode records: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(records) == 0 {
			fmt.Println("No audit records found.")
			return nil
		}

		fmt.Printf("\n%-19s  %-10s  %-7s  %-28s  %-24s  %s\n",
			"SENT AT", "CLASS", "STATUS", "RECIPIENT", "ASSET", "ERROR")
		fmt.Println(strings.Repeat("-", 110))

		for _, rec := range records {
			asset := rec.AssetLabel
			if asset == "" {
				asset = rec.AssetID
			}
			fmt.Printf("%-19s  %-10s  %-7s  %-28s  %-24s  %s\n",
				rec.SentAt.Format("2006-01-02 15:04:05"),
				rec.Class,
				rec.Status,
				truncate(rec.Recipient, 28),
				truncate(asset, 24),
				truncate(rec.ErrorDetail, 40),
			)
		}
		fmt.Printf("\nShowing %d of %d record(s)", len(records), total)
		if int64(auditOffset+len(records)) < total {
			fmt.Printf(" (next page: --offset %d)", auditOffset+len(records))
		}
		fmt.Println()

		return nil
	},
}

// auditExportCmd exports audit records in bulk
var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records in bulk",
	Long: `Export audit records as CSV or JSON, oldest first.

Records stream directly to the output without loading the full trail
into memory. All list filters apply; --limit and --offset do not.

Examples:
  staleguard audit export --format csv --out audit.csv
  staleguard audit export --format json --status failed`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, ok := audit.ParseExportFormat(auditFormat)
		if !ok {
			return fmt.Errorf("unknown export format: %s (use: csv, json)", auditFormat)
		}

		filter, err := buildAuditFilter()
		if err != nil {
			return err
		}

		cfg, err := loadEngineConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		out := os.Stdout
		if auditOut != "" {
			f, err := os.Create(auditOut)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		exporter := audit.NewExporter(format, out)
		if err := exporter.Export(context.Background(), store.Audit(), filter); err != nil {
			return fmt.Errorf("export audit records: %w", err)
		}

		if auditOut != "" {
			PrintVerbose("Exported to %s", auditOut)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditExportCmd)

	for _, c := range []*cobra.Command{auditListCmd, auditExportCmd} {
		c.Flags().StringVar(&auditFrom, "from", "", "include records sent at or after this time")
		c.Flags().StringVar(&auditTo, "to", "", "include records sent before this time")
		c.Flags().StringVar(&auditClass, "class", "", "filter by class: reminder, escalated, digest")
		c.Flags().StringVar(&auditStatus, "status", "", "filter by status: sent, failed, pending")
		c.Flags().StringVar(&auditRecipient, "recipient", "", "filter by recipient address")
	}

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum records per page")
	auditListCmd.Flags().IntVar(&auditOffset, "offset", 0, "records to skip")

	auditExportCmd.Flags().StringVar(&auditFormat, "format", "csv", "export format: csv, json")
	auditExportCmd.Flags().StringVar(&auditOut, "out", "", "output file (default stdout)")
}

// buildAuditFilter validates the shared filter flags.
func buildAuditFilter() (storage.AuditFilter, error) {
	var filter storage.AuditFilter

	if auditFrom != "" {
		t, err := parseTimeFlag(auditFrom)
		if err != nil {
			return filter, fmt.Errorf("invalid --from: %w", err)
		}
		filter.From = t
	}
	if auditTo != "" {
		t, err := parseTimeFlag(auditTo)
		if err != nil {
			return filter, fmt.Errorf("invalid --to: %w", err)
		}
		filter.To = t
	}

	switch models.NotificationClass(auditClass) {
	case "", models.ClassReminder, models.ClassEscalated, models.ClassDigest:
		filter.Class = models.NotificationClass(auditClass)
	default:
		return filter, fmt.Errorf("unknown class: %s (use: reminder, escalated, digest)", auditClass)
	}

	switch models.DispatchStatus(auditStatus) {
	case "", models.StatusSent, models.StatusFailed, models.StatusPending:
		filter.Status = models.DispatchStatus(auditStatus)
	default:
		return filter, fmt.Errorf("unknown status: %s (use: sent, failed, pending)", auditStatus)
	}

	filter.Recipient = auditRecipient
	return filter, nil
}

// parseTimeFlag accepts RFC 3339 or a plain local date.
func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-2] + ".."
}
