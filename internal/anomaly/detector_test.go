package anomaly

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerstack/predict-engine/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baselineTransactions(n int, amount float64) []models.Transaction {
	base := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)
	txns := make([]models.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txns = append(txns, models.Transaction{
			ID:        "txn-" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Amount:    decimal.NewFromFloat(amount + float64(i%5)*3.17),
			Category:  "office_supplies",
		})
	}
	return txns
}

func TestDetectEmptyInput(t *testing.T) {
	d := NewDetector(testLogger())
	detections, err := d.Detect(nil)
	if err != nil {
		t.Fatalf("expected clean sweep for empty input, got %v", err)
	}
	if len(detections) != 0 {
		t.Errorf("expected no detections, got %d", len(detections))
	}
}

func TestDetectFlagsOutlier(t *testing.T) {
	txns := baselineTransactions(20, 120)
	txns = append(txns, models.Transaction{
		ID:        "txn-outlier",
		Timestamp: time.Date(2025, 4, 1, 3, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromFloat(9500),
		Category:  "office_supplies",
	})

	d := NewDetector(testLogger())
	detections, err := d.Detect(txns)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(detections) == 0 {
		t.Fatal("expected the outlier to be flagged")
	}

	top := detections[0]
	if top.TransactionID != "txn-outlier" {
		t.Errorf("expected txn-outlier first, got %s", top.TransactionID)
	}
	if top.Score <= d.Threshold() {
		t.Errorf("reported score %.3f must be above threshold %.3f", top.Score, d.Threshold())
	}
	if top.Score > 1 {
		t.Errorf("score %.3f exceeds 1", top.Score)
	}
	if len(top.RiskFactors) == 0 {
		t.Error("expected risk factors on the detection")
	}
	if top.RecommendedAction == "" || top.RecommendedAction == "auto_approve" {
		t.Errorf("outlier should not be auto approved, got %q", top.RecommendedAction)
	}
}

func TestDetectSuppressesRoutineTransactions(t *testing.T) {
	txns := baselineTransactions(25, 120)

	d := NewDetector(testLogger())
	detections, err := d.Detect(txns)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for _, det := range detections {
		if det.Score <= d.Threshold() {
			t.Errorf("detection %s at score %.3f should have been suppressed", det.TransactionID, det.Score)
		}
	}
}

func TestDetectNearDuplicates(t *testing.T) {
	txns := baselineTransactions(15, 200)
	at := time.Date(2025, 4, 2, 11, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		txns = append(txns, models.Transaction{
			ID:        "dup-" + string(rune('1'+i)),
			Timestamp: at.Add(time.Duration(i) * 12 * time.Hour),
			Amount:    decimal.NewFromFloat(4700),
			Category:  "office_supplies",
		})
	}

	d := NewDetector(testLogger())
	detections, err := d.Detect(txns)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	found := false
	for _, det := range detections {
		for _, f := range det.RiskFactors {
			if f == "near_duplicate" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected near_duplicate factor on the repeated transactions")
	}
}

func TestDetectOrderedByScore(t *testing.T) {
	txns := baselineTransactions(20, 120)
	txns = append(txns,
		models.Transaction{
			ID:        "big",
			Timestamp: time.Date(2025, 4, 1, 2, 0, 0, 0, time.UTC),
			Amount:    decimal.NewFromFloat(50000),
			Category:  "office_supplies",
		},
		models.Transaction{
			ID:        "medium",
			Timestamp: time.Date(2025, 4, 2, 13, 0, 0, 0, time.UTC),
			Amount:    decimal.NewFromFloat(2000),
			Category:  "office_supplies",
		},
	)

	d := NewDetector(testLogger())
	detections, err := d.Detect(txns)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for i := 1; i < len(detections); i++ {
		if detections[i].Score > detections[i-1].Score {
			t.Errorf("detections not ordered by score: %.3f after %.3f",
				detections[i].Score, detections[i-1].Score)
		}
	}
}

func TestWithThreshold(t *testing.T) {
	d := NewDetector(testLogger(), WithThreshold(0.6))
	if d.Threshold() != 0.6 {
		t.Errorf("expected threshold 0.6, got %.2f", d.Threshold())
	}

	d = NewDetector(testLogger(), WithThreshold(1.5))
	if d.Threshold() != DefaultThreshold {
		t.Errorf("invalid override should keep default, got %.2f", d.Threshold())
	}
}

func reviewLabels(category string, confirmed, dismissed int) []models.DetectionLabel {
	labels := make([]models.DetectionLabel, 0, confirmed+dismissed)
	for i := 0; i < confirmed; i++ {
		labels = append(labels, models.DetectionLabel{Category: category, Confirmed: true})
	}
	for i := 0; i < dismissed; i++ {
		labels = append(labels, models.DetectionLabel{Category: category})
	}
	return labels
}

func TestLearnCategoryWeightClamps(t *testing.T) {
	labels := append(reviewLabels("wires", 9, 1), reviewLabels("office_supplies", 1, 9)...)
	weights := learnCategoryWeights(labels)

	if got := weights["wires"]; got != maxCategoryWeight {
		t.Errorf("confirm-heavy category should clamp to %.1f, got %.3f", maxCategoryWeight, got)
	}
	if got := weights["office_supplies"]; got != minCategoryWeight {
		t.Errorf("dismiss-heavy category should clamp to %.1f, got %.3f", minCategoryWeight, got)
	}
	if learnCategoryWeights(nil) != nil {
		t.Error("no labels should yield no weights")
	}
}

func TestDetectAppliesLabeledWeights(t *testing.T) {
	txns := baselineTransactions(20, 120)
	txns = append(txns, models.Transaction{
		ID:        "txn-outlier",
		Timestamp: time.Date(2025, 4, 1, 3, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromFloat(9500),
		Category:  "office_supplies",
	})

	plain := NewDetector(testLogger())
	base, err := plain.Detect(txns)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(base) == 0 {
		t.Fatal("expected the outlier flagged without labels")
	}

	boosted := NewDetector(testLogger(), WithLabeledHistory(reviewLabels("office_supplies", 9, 1)))
	up, err := boosted.Detect(txns)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(up) == 0 || up[0].Score <= base[0].Score {
		t.Fatalf("confirm-heavy labels should raise the score above %.3f", base[0].Score)
	}
	found := false
	for _, f := range up[0].RiskFactors {
		if f == "category_confirmation_history" {
			found = true
		}
	}
	if !found {
		t.Error("expected category_confirmation_history factor on the boosted detection")
	}

	discounted := NewDetector(testLogger(), WithLabeledHistory(reviewLabels("office_supplies", 1, 9)))
	down, err := discounted.Detect(txns)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(down) > 0 && down[0].Score >= base[0].Score {
		t.Errorf("dismiss-heavy labels should lower the score below %.3f, got %.3f", base[0].Score, down[0].Score)
	}
}

func TestRiskLevelMapping(t *testing.T) {
	cases := []struct {
		score float64
		want  models.RiskLevel
	}{
		{0.2, models.RiskLow},
		{0.55, models.RiskMedium},
		{0.75, models.RiskHigh},
		{0.9, models.RiskCritical},
	}
	for _, tc := range cases {
		if got := models.RiskLevelForScore(tc.score); got != tc.want {
			t.Errorf("score %.2f: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}
