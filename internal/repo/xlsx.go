package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ledgerstack/predict-engine/internal/models"
)

// xlsx ledger imports accept the export layout used by the upstream
// accounting tools: one sheet with a header row of
// id | date | amount | category | description | channel.

var xlsxDateLayouts = []string{"2006-01-02", "01-02-06", "2006/01/02", time.RFC3339}

// ImportLedgerXLSX reads transactions from the first sheet of an XLSX
// export. Rows with an empty id or unparseable date/amount are skipped with
// their row numbers reported.
func ImportLedgerXLSX(path string) ([]models.Transaction, []int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("sheet %s has no data rows", sheets[0])
	}

	var (
		txns    []models.Transaction
		skipped []int
	)
	for i, row := range rows[1:] {
		rowNum := i + 2
		if len(row) < 3 || strings.TrimSpace(row[0]) == "" {
			skipped = append(skipped, rowNum)
			continue
		}
		ts, ok := parseXLSXDate(strings.TrimSpace(row[1]))
		if !ok {
			skipped = append(skipped, rowNum)
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(row[2]))
		if err != nil {
			skipped = append(skipped, rowNum)
			continue
		}

		t := models.Transaction{
			ID:        strings.TrimSpace(row[0]),
			Timestamp: ts,
			Amount:    amount,
		}
		if len(row) > 3 {
			t.Category = strings.TrimSpace(row[3])
		}
		if len(row) > 4 {
			t.Description = strings.TrimSpace(row[4])
		}
		if len(row) > 5 {
			t.Channel = strings.TrimSpace(row[5])
		}
		txns = append(txns, t)
	}
	return txns, skipped, nil
}

func parseXLSXDate(value string) (time.Time, bool) {
	for _, layout := range xlsxDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
