package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// LedgerImporter ingests monthly general-ledger XLSX exports from Cloud
// Storage into immutable P&L line items, then recomputes the monthly
// statement.
type LedgerImporter struct {
	db *gorm.DB
}

func NewLedgerImporter(db *gorm.DB) *LedgerImporter {
	return &LedgerImporter{db: db}
}

type LedgerImportResult struct {
	ImportId     string `json:"importId"`
	RowsImported int    `json:"rowsImported"`
	RowsSkipped  int    `json:"rowsSkipped"`
	DupesRemoved int    `json:"dupesRemoved"`
}

// ledgerRow is the validated shape of one sheet row before ingestion.
type ledgerRow struct {
	Category    string          `validate:"required,max=255"`
	Subcategory string          `validate:"max=255"`
	GLAccount   string          `validate:"max=64"`
	Amount      decimal.Decimal `validate:"-"`
}

// ImportFromBucket downloads an export object, parses it and ingests its
// rows for one (location, year, month). Every run gets a fresh import id;
// the dedup pass afterwards collapses rows a re-import duplicated, keeping
// the earliest copy so established figures never silently change.
func (l *LedgerImporter) ImportFromBucket(ctx context.Context, objectName, locationRef string, year, month int) (*LedgerImportResult, error) {
	bucket, err := config.LedgerExportBucket()
	if err != nil {
		return nil, err
	}
	client, err := config.GetStorageClient(ctx)
	if err != nil {
		return nil, err
	}

	reader, err := client.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, objectName, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	return l.ImportSheet(ctx, bytes.NewReader(content), locationRef, year, month)
}

// ImportSheet ingests an XLSX ledger export from an in-memory reader.
// Split out from ImportFromBucket so tests can feed sheets directly.
func (l *LedgerImporter) ImportSheet(ctx context.Context, r io.Reader, locationRef string, year, month int) (*LedgerImportResult, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open ledger sheet: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("ledger export has no sheets")
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}

	result := &LedgerImportResult{ImportId: uuid.NewString()}
	validate := utils.GetValidator()

	for i, cells := range rows {
		if i == 0 && isLedgerHeader(cells) {
			continue
		}
		row, ok := parseLedgerRow(cells)
		if !ok {
			result.RowsSkipped++
			continue
		}
		if err := validate.Struct(row); err != nil {
			config.LogWarn(config.GetLogger(), "workflow", "ImportSheet",
				fmt.Sprintf("row %d", i+1),
				fmt.Sprintf("invalid ledger row: %v", utils.ProcessValidationErrors(err)))
			result.RowsSkipped++
			continue
		}

		item := models.PnLLineItem{
			LocationRef: locationRef,
			Year:        year,
			Month:       month,
			Category:    row.Category,
			Subcategory: row.Subcategory,
			GLAccount:   row.GLAccount,
			Amount:      normalizeLedgerSign(row.Category, row.Amount),
			ImportId:    result.ImportId,
		}
		if err := l.db.WithContext(ctx).Create(&item).Error; err != nil {
			return result, fmt.Errorf("row %d: %w", i+1, err)
		}
		result.RowsImported++
	}

	dedup, err := DedupePnLLineItems(ctx, l.db, locationRef, year, month)
	if err != nil {
		return result, err
	}
	result.DupesRemoved = dedup.Removed

	if _, err := AggregatePnL(ctx, l.db, locationRef, year, month); err != nil {
		return result, err
	}
	return result, nil
}

// isLedgerHeader detects the label row exports usually carry.
func isLedgerHeader(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(cells[0]))
	return first == "categorie" || first == "category" || first == "grootboek"
}

// parseLedgerRow reads (category, subcategory, gl account, amount) from a
// sheet row. Rows without a category or a parseable amount are skipped,
// not fatal: exports carry subtotal and spacer rows.
func parseLedgerRow(cells []string) (ledgerRow, bool) {
	var row ledgerRow
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	row.Category = get(0)
	row.Subcategory = get(1)
	row.GLAccount = get(2)
	if row.Category == "" {
		return row, false
	}

	amount, err := utils.ParseDecimal(get(3))
	if err != nil {
		return row, false
	}
	row.Amount = amount
	return row, true
}

// normalizeLedgerSign enforces the statement sign convention at the
// ingestion boundary: income buckets positive, cost buckets negative.
// Exports list costs as positive magnitudes, so cost categories flip sign
// here and never again downstream.
func normalizeLedgerSign(category string, amount decimal.Decimal) decimal.Decimal {
	bucket, ok := BucketForCategory(category)
	if !ok {
		return amount
	}
	switch bucket {
	case BucketRevenue, BucketOtherIncome:
		return amount.Abs()
	case BucketFinancial:
		// Financial holds both interest income and expense; the export
		// already signs these correctly.
		return amount
	default:
		return amount.Abs().Neg()
	}
}
