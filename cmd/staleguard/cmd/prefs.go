package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

var (
	prefsOwnerID string
	prefsDigest  bool
)

// prefsCmd represents the prefs command group
var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage owner notification preferences",
	Long: `Commands for the per-owner digest opt-in.

Owners with the digest enabled receive a periodic summary of findings
that appeared on their assets since their last digest, in addition to
the primary overdue reminders. The digest is off by default.

Examples:
  # Enable the digest for an owner
  staleguard prefs set --owner team-platform --digest

  # Disable it again
  staleguard prefs set --owner team-platform --digest=false

  # Show one owner's preference
  staleguard prefs show --owner team-platform

  # List every owner with the digest enabled
  staleguard prefs list`,
}

// prefsShowCmd shows one owner's preference
var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show an owner's digest preference",
	Long: `Show the digest opt-in and last-digest watermark for one owner.

Example:
  staleguard prefs show --owner team-platform`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEngineConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		pref, err := store.Preferences().Get(context.Background(), prefsOwnerID)
		if err != nil {
			return fmt.Errorf("get preference: %w", err)
		}
		if pref == nil {
			fmt.Printf("Owner %s has no preference row (digest disabled).\n", prefsOwnerID)
			return nil
		}

		fmt.Println("\nPreference:")
		fmt.Printf("  Owner:       %s\n", pref.OwnerID)
		fmt.Printf("  Digest:      %s\n", enabledString(pref.DigestEnabled))
		fmt.Printf("  Last digest: %s\n", formatWatermark(pref.LastDigestAt))
		fmt.Printf("  Updated:     %s\n", pref.UpdatedAt.Format("2006-01-02 15:04:05"))

		return nil
	},
}

// prefsSetCmd sets an owner's digest preference
var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set an owner's digest preference",
	Long: `Enable or disable the digest for an owner.

Enabling does not backfill: the first digest covers findings that
appear after this point. Disabling keeps the watermark so a later
re-enable does not replay old findings.

Examples:
  staleguard prefs set --owner team-platform --digest
  staleguard prefs set --owner team-platform --digest=false`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEngineConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		now := time.Now()

		pref, err := store.Preferences().Get(ctx, prefsOwnerID)
		if err != nil {
			return fmt.Errorf("get preference: %w", err)
		}
		if pref == nil {
			pref = &models.OwnerPreference{OwnerID: prefsOwnerID}
			if prefsDigest {
				// Start the digest window now rather than replaying
				// every historical finding.
				pref.LastDigestAt = &now
			}
		}
		pref.DigestEnabled = prefsDigest
		pref.UpdatedAt = now

		if err := store.Preferences().Set(ctx, pref); err != nil {
			return fmt.Errorf("set preference: %w", err)
		}

		fmt.Printf("Digest %s for owner %s\n", enabledString(prefsDigest), prefsOwnerID)
		return nil
	},
}

// prefsListCmd lists owners with the digest enabled
var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List owners with the digest enabled",
	Long: `List every owner whose digest opt-in is set, with their watermark.

Example:
  staleguard prefs list`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEngineConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		prefs, err := store.Preferences().ListDigestEnabled(context.Background())
		if err != nil {
			return fmt.Errorf("list preferences: %w", err)
		}

		if len(prefs) == 0 {
			fmt.Println("No owners have the digest enabled.")
			return nil
		}

		fmt.Printf("\n%-28s  %-19s  %s\n", "OWNER", "LAST DIGEST", "UPDATED")
		fmt.Println(strings.Repeat("-", 70))

		for _, p := range prefs {
			fmt.Printf("%-28s  %-19s  %s\n",
				truncate(p.OwnerID, 28),
				formatWatermark(p.LastDigestAt),
				p.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		fmt.Printf("\nTotal: %d owner(s)\n", len(prefs))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsListCmd)

	prefsShowCmd.Flags().StringVar(&prefsOwnerID, "owner", "", "owner ID (required)")
	prefsShowCmd.MarkFlagRequired("owner")

	prefsSetCmd.Flags().StringVar(&prefsOwnerID, "owner", "", "owner ID (required)")
	prefsSetCmd.Flags().BoolVar(&prefsDigest, "digest", true, "enable the digest")
	prefsSetCmd.MarkFlagRequired("owner")
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func formatWatermark(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}
