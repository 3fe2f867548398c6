package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/partnersync"
	"github.com/horecafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// Batches are bounded by record count, not date span: a quiet Monday
	// has 10 records where a festival Saturday has 500, so date-bounded
	// batches cannot hold a compute budget.
	aggregationBatchSize = 250

	// Cooperative throttle between batches, protecting the backing store.
	interBatchDelay = 300 * time.Millisecond
)

// AggregationEngine rolls processed records into daily per-location
// aggregates. Every pass is a full recomputation for the touched keys;
// totals are never incremented in place, which is what makes re-running
// over an already-aggregated range produce identical numbers.
type AggregationEngine struct {
	db       *gorm.DB
	resolver *WorkingDayResolver
}

func NewAggregationEngine(db *gorm.DB, resolver *WorkingDayResolver) *AggregationEngine {
	return &AggregationEngine{db: db, resolver: resolver}
}

type AggregationResult struct {
	RecordsAggregated int      `json:"recordsAggregated"`
	Batches           int      `json:"batches"`
	Errors            []string `json:"errors,omitempty"`
}

// Aggregate drains the unaggregated backlog. Each batch is the next N
// unaggregated records; the date range actually recomputed is derived from
// the min/max dates observed inside that batch. A failing batch is logged
// and skipped (its records stay unaggregated for a later run); the loop
// moves on behind an id cursor so one poisoned batch cannot stall the rest.
func (e *AggregationEngine) Aggregate(ctx context.Context) (AggregationResult, error) {
	result := AggregationResult{}
	cursor := uint(0)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := models.NextUnaggregatedBatch(ctx, e.db, cursor, aggregationBatchSize)
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			return result, nil
		}
		result.Batches++

		if err := e.aggregateBatch(ctx, batch); err != nil {
			msg := fmt.Sprintf("batch after id %d: %v", cursor, err)
			config.LogError(config.GetLogger(), "workflow", "Aggregate", "batch", nil, err)
			result.Errors = append(result.Errors, msg)
		} else {
			result.RecordsAggregated += len(batch)
		}

		cursor = batch[len(batch)-1].ID

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(interBatchDelay):
		}
	}
}

func (e *AggregationEngine) aggregateBatch(ctx context.Context, batch []models.ProcessedRecord) error {
	from, to := batchDateBounds(batch)
	locations := batchLocations(batch)

	// Recompute from the FULL processed set for the touched range, not
	// just the batch rows. The batch only tells us which keys are dirty.
	records, err := models.ListProcessedRecordsForRange(ctx, e.db, from, to, locations)
	if err != nil {
		return err
	}

	revenue, err := e.loadRevenueByKey(ctx, from, to, locations)
	if err != nil {
		return err
	}

	aggregates := computeDailyAggregates(records, revenue)
	for i := range aggregates {
		if _, err := models.UpsertAggregatedRecord(ctx, e.db, &aggregates[i]); err != nil {
			return err
		}
	}

	ids := make([]uint, 0, len(batch))
	for _, r := range batch {
		ids = append(ids, r.ID)
	}
	return models.MarkRecordsAggregated(ctx, e.db, ids)
}

func batchDateBounds(batch []models.ProcessedRecord) (time.Time, time.Time) {
	from, to := batch[0].Date, batch[0].Date
	for _, r := range batch[1:] {
		if r.Date.Before(from) {
			from = r.Date
		}
		if r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to
}

func batchLocations(batch []models.ProcessedRecord) []string {
	var refs []string
	for _, r := range batch {
		refs = append(refs, r.LocationRef)
	}
	return utils.UniqueSlice(refs)
}

// loadRevenueByKey sums POS revenue per (date, location) from the raw
// store. Revenue records stay raw; they only exist to be summed here.
func (e *AggregationEngine) loadRevenueByKey(ctx context.Context, from, to time.Time, locations []string) (map[string]decimal.Decimal, error) {
	revenue := map[string]decimal.Decimal{}
	locationSet := map[string]bool{}
	for _, ref := range locations {
		locationSet[ref] = true
	}

	afterId := uint(0)
	for {
		page, err := models.ListRawRecordsPage(ctx, e.db, models.EndpointTypeRevenue, afterId, dedupPageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, raw := range page {
			afterId = raw.ID
			if !locationSet[raw.LocationRef] || raw.BusinessDate.Before(from) || raw.BusinessDate.After(to) {
				continue
			}
			var payload partnersync.RevenuePayload
			if err := json.Unmarshal(raw.PayloadJSON, &payload); err != nil {
				continue
			}
			amount := firstDecimal(payload.AmountExclVat, payload.Amount, payload.Turnover)
			key := aggregationKey(raw.BusinessDate, raw.LocationRef)
			revenue[key] = revenue[key].Add(amount)
		}
		if len(page) < dedupPageSize {
			break
		}
	}
	return revenue, nil
}

func aggregationKey(date time.Time, locationRef string) string {
	return date.Format("2006-01-02") + "|" + locationRef
}

// computeDailyAggregates is the pure aggregation core: one location-total
// row per (date, location) plus one row per team dimension. Revenue and
// its derived metrics only apply to the location total — the POS does not
// attribute revenue to teams.
func computeDailyAggregates(records []models.ProcessedRecord, revenueByKey map[string]decimal.Decimal) []models.AggregatedRecord {
	type bucket struct {
		date        time.Time
		locationRef string
		dimension   string
		hours       decimal.Decimal
		wage        decimal.Decimal
	}
	buckets := map[string]*bucket{}

	add := func(date time.Time, locationRef, dimension string, hours, wage decimal.Decimal) {
		key := aggregationKey(date, locationRef) + "|" + dimension
		b, ok := buckets[key]
		if !ok {
			b = &bucket{date: date, locationRef: locationRef, dimension: dimension}
			buckets[key] = b
		}
		b.hours = b.hours.Add(hours)
		b.wage = b.wage.Add(wage)
	}

	for _, r := range records {
		hours := decimal.Zero
		if r.RecordKind == models.RecordKindWorked {
			hours = r.HoursWorked
		}
		// Leave is still paid: wage cost counts for every record kind.
		wage := decimal.Zero
		if r.WageCost != nil {
			wage = *r.WageCost
		}

		add(r.Date, r.LocationRef, "", hours, wage)
		if r.TeamRef != nil {
			add(r.Date, r.LocationRef, "team:"+*r.TeamRef, hours, wage)
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.AggregatedRecord, 0, len(buckets))
	for _, k := range keys {
		b := buckets[k]
		record := models.AggregatedRecord{
			Date:             b.date,
			LocationRef:      b.locationRef,
			Dimension:        b.dimension,
			TotalHoursWorked: b.hours,
			TotalWageCost:    b.wage,
		}
		if b.dimension == "" {
			record.TotalRevenue = revenueByKey[aggregationKey(b.date, b.locationRef)]
		}
		record.LaborCostPct = safeRatio(record.TotalWageCost, record.TotalRevenue)
		record.RevenuePerHour = safeRatio(record.TotalRevenue, record.TotalHoursWorked)
		out = append(out, record)
	}
	return out
}

// safeRatio returns numerator/denominator, or zero when the denominator is
// not positive. The zero-denominator rule is part of the aggregate
// contract, not a convenience.
func safeRatio(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return numerator.Div(denominator).Round(6)
}
