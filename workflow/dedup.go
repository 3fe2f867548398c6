package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"gorm.io/gorm"
)

// KeepPolicy decides which row of a duplicate set survives. The choice
// changes financial totals, so it is explicit per table and must not be
// inferred:
//
//   - raw/processed records: KeepNewest — the latest fetch carries the
//     partner's most recent correction.
//   - ledger rows: KeepOldest — the first import is the authoritative
//     statement; re-imports must not silently replace booked figures.
type KeepPolicy string

const (
	KeepNewest KeepPolicy = "newest"
	KeepOldest KeepPolicy = "oldest"
)

const (
	dedupPageSize        = 1000
	dedupDeleteBatchSize = 500

	// Above this share of removed rows the run is flagged as a
	// data-integrity warning: something upstream is re-sending history.
	dedupWarnRatio = 0.10
)

// DedupStats is returned by every dedup pass. Warning is set (never
// thrown) when duplicate volume was unexpectedly high.
type DedupStats struct {
	Kept    int    `json:"kept"`
	Removed int    `json:"removed"`
	Warning string `json:"warning,omitempty"`
}

type dedupCandidate struct {
	ID        uint
	Key       string
	CreatedAt time.Time
}

// selectLosers groups candidates by natural key and returns the ids to
// delete under the given policy. Ties on timestamp fall back to row id so
// repeated runs pick the same winner (idempotence).
func selectLosers(candidates []dedupCandidate, policy KeepPolicy) []uint {
	groups := map[string][]dedupCandidate{}
	for _, c := range candidates {
		groups[c.Key] = append(groups[c.Key], c)
	}

	var losers []uint
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})

		var winner dedupCandidate
		if policy == KeepOldest {
			winner = group[0]
		} else {
			winner = group[len(group)-1]
		}
		for _, c := range group {
			if c.ID != winner.ID {
				losers = append(losers, c.ID)
			}
		}
	}
	sort.Slice(losers, func(i, j int) bool { return losers[i] < losers[j] })
	return losers
}

func deleteInBatches(ctx context.Context, db *gorm.DB, model interface{}, ids []uint) error {
	for start := 0; start < len(ids); start += dedupDeleteBatchSize {
		end := start + dedupDeleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := db.WithContext(ctx).Where("id IN ?", ids[start:end]).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func dedupWarning(table string, kept, removed int) string {
	total := kept + removed
	if total == 0 || removed == 0 {
		return ""
	}
	if float64(removed)/float64(total) > dedupWarnRatio {
		return fmt.Sprintf("%s: removed %d of %d rows; duplicate volume unexpectedly high", table, removed, total)
	}
	return ""
}

// DedupeRawRecords collapses raw rows sharing a natural key
// (endpoint, source id, business date, location), keeping the newest.
// Safe to re-run: a second pass finds nothing to remove.
func DedupeRawRecords(ctx context.Context, db *gorm.DB, endpointType models.EndpointType) (DedupStats, error) {
	var candidates []dedupCandidate

	afterId := uint(0)
	for {
		var page []models.RawRecord
		err := db.WithContext(ctx).
			Where("endpoint_type = ? AND id > ?", endpointType, afterId).
			Order("id").
			Limit(dedupPageSize).
			Find(&page).Error
		if err != nil {
			return DedupStats{}, err
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			candidates = append(candidates, dedupCandidate{
				ID:        r.ID,
				Key:       strings.Join([]string{string(r.EndpointType), r.SourceId, r.BusinessDate.Format("2006-01-02"), r.LocationRef}, "|"),
				CreatedAt: r.IngestedAt,
			})
			afterId = r.ID
		}
		if len(page) < dedupPageSize {
			break
		}
	}

	losers := selectLosers(candidates, KeepNewest)
	if err := deleteInBatches(ctx, db, &models.RawRecord{}, losers); err != nil {
		return DedupStats{}, err
	}

	stats := DedupStats{Kept: len(candidates) - len(losers), Removed: len(losers)}
	stats.Warning = dedupWarning("raw_records", stats.Kept, stats.Removed)
	if stats.Warning != "" {
		config.LogWarn(config.GetLogger(), "workflow", "DedupeRawRecords", string(endpointType), stats.Warning)
	}
	return stats, nil
}

// DedupePnLLineItems collapses ledger rows sharing the financial natural
// key (category, subcategory, gl account, amount) within one statement
// month, keeping the oldest.
func DedupePnLLineItems(ctx context.Context, db *gorm.DB, locationRef string, year, month int) (DedupStats, error) {
	var candidates []dedupCandidate

	afterId := uint(0)
	for {
		page, err := models.ListPnLLineItemsPage(ctx, db, locationRef, year, month, afterId, dedupPageSize)
		if err != nil {
			return DedupStats{}, err
		}
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			candidates = append(candidates, dedupCandidate{
				ID:        item.ID,
				Key:       strings.Join([]string{item.Category, item.Subcategory, item.GLAccount, item.Amount.String()}, "|"),
				CreatedAt: item.CreatedAt,
			})
			afterId = item.ID
		}
		if len(page) < dedupPageSize {
			break
		}
	}

	losers := selectLosers(candidates, KeepOldest)
	if err := deleteInBatches(ctx, db, &models.PnLLineItem{}, losers); err != nil {
		return DedupStats{}, err
	}

	stats := DedupStats{Kept: len(candidates) - len(losers), Removed: len(losers)}
	stats.Warning = dedupWarning("pnl_line_items", stats.Kept, stats.Removed)
	if stats.Warning != "" {
		config.LogWarn(config.GetLogger(), "workflow", "DedupePnLLineItems",
			fmt.Sprintf("%s %d-%02d", locationRef, year, month), stats.Warning)
	}
	return stats, nil
}
