// Package aggregate groups notification decisions into one message bundle
// per recipient.
package aggregate

import (
	"sort"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/escalation"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

// Item is one overdue asset as it appears inside a bundled message.
type Item struct {
	AssetID      string
	Label        string
	Severity     models.Severity
	OverdueDays  int
	FindingCount int
}

// Bundle is a single composite message for one recipient. Pending carries
// the reminder-state rows to commit once the bundle is confirmed sent; for
// digest bundles it is empty and OwnerID/Watermark drive the watermark
// update instead.
type Bundle struct {
	Recipient      string
	OwnerID        string
	Class          models.NotificationClass
	Items          []Item
	SeverityCounts map[models.Severity]int
	Pending        []*models.ReminderState

	// Digest-only fields. Watermark is the value last_digest_at advances
	// to after a confirmed send.
	Findings  []*models.Finding
	Watermark time.Time
}

// Primary groups notify decisions by recipient address. Each recipient
// gets exactly one bundle; when level-1 and level-2 items mix, the
// escalated class dominates the whole bundle.
func Primary(decisions []*escalation.Decision) []*Bundle {
	byAddr := make(map[string]*Bundle)

	for _, d := range decisions {
		if !d.Action.Notifies() {
			continue
		}

		b, ok := byAddr[d.Address]
		if !ok {
			b = &Bundle{
				Recipient:      d.Address,
				OwnerID:        d.Asset.OwnerID,
				Class:          models.ClassReminder,
				SeverityCounts: make(map[models.Severity]int),
			}
			byAddr[d.Address] = b
		}

		if d.Action == escalation.ActionNotifyLevel2 {
			b.Class = models.ClassEscalated
		}

		b.Items = append(b.Items, Item{
			AssetID:      d.Asset.AssetID,
			Label:        d.Asset.Label,
			Severity:     d.Asset.Severity,
			OverdueDays:  d.Asset.OverdueDays,
			FindingCount: d.Asset.FindingCount,
		})
		if d.Asset.Severity != "" {
			b.SeverityCounts[d.Asset.Severity]++
		}
		b.Pending = append(b.Pending, d.Pending)
	}

	bundles := make([]*Bundle, 0, len(byAddr))
	for _, b := range byAddr {
		sort.Slice(b.Items, func(i, j int) bool {
			return b.Items[i].AssetID < b.Items[j].AssetID
		})
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].Recipient < bundles[j].Recipient
	})
	return bundles
}

// Digests converts digest decisions into bundles, one per owner. Digest
// bundles are never merged with primary bundles for the same recipient;
// classes stay distinct messages.
func Digests(decisions []*escalation.DigestDecision) []*Bundle {
	bundles := make([]*Bundle, 0, len(decisions))
	for _, d := range decisions {
		b := &Bundle{
			Recipient:      d.Address,
			OwnerID:        d.OwnerID,
			Class:          models.ClassDigest,
			SeverityCounts: make(map[models.Severity]int),
			Findings:       d.Findings,
			Watermark:      d.Watermark,
		}
		for _, f := range d.Findings {
			if f.Severity != "" {
				b.SeverityCounts[f.Severity]++
			}
		}
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].Recipient < bundles[j].Recipient
	})
	return bundles
}

// Labels returns the bundled item labels (or digest asset labels) for
// audit denormalization.
func (b *Bundle) Labels() []string {
	if b.Class == models.ClassDigest {
		seen := make(map[string]bool)
		var labels []string
		for _, f := range b.Findings {
			if !seen[f.AssetLabel] {
				seen[f.AssetLabel] = true
				labels = append(labels, f.AssetLabel)
			}
		}
		return labels
	}
	labels := make([]string, len(b.Items))
	for i, item := range b.Items {
		labels[i] = item.Label
	}
	return labels
}

// SingleAssetID returns the asset ID when the bundle covers exactly one
// asset, otherwise empty. Multi-asset bundles leave the audit asset ID
// unset and rely on the denormalized labels.
func (b *Bundle) SingleAssetID() string {
	if b.Class == models.ClassDigest {
		return ""
	}
	if len(b.Items) == 1 {
		return b.Items[0].AssetID
	}
	return ""
}
