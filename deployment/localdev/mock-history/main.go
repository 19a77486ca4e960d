package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"
)

type seriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Amount    string    `json:"amount"`
	Category  string    `json:"category"`
	Source    string    `json:"source"`
}

type ledgerEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Amount      string    `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Channel     string    `json:"channel"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/history/series", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		start := time.Now().AddDate(0, 0, -120)
		points := make([]seriesPoint, 0, 120)
		for i := 0; i < 120; i++ {
			// Level plus a weekly wave and a slow upward drift.
			value := 12000 + 1500*math.Sin(2*math.Pi*float64(i)/7) + 20*float64(i)
			points = append(points, seriesPoint{
				Timestamp: start.AddDate(0, 0, i),
				Amount:    fmt.Sprintf("%.2f", value),
				Category:  "cash",
				Source:    "mock",
			})
		}
		writeJSON(w, map[string]any{"series": points})
	})

	mux.HandleFunc("/api/v1/history/ledger", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		now := time.Now()
		writeJSON(w, map[string]any{
			"transactions": []ledgerEntry{
				{ID: "txn-1", Timestamp: now.Add(-72 * time.Hour), Amount: "189.50", Category: "supplies", Description: "printer paper", Channel: "card"},
				{ID: "txn-2", Timestamp: now.Add(-48 * time.Hour), Amount: "212.00", Category: "supplies", Description: "toner", Channel: "card"},
				{ID: "txn-3", Timestamp: now.Add(-26 * time.Hour), Amount: "15000.00", Category: "supplies", Description: "bulk order", Channel: "wire"},
				{ID: "txn-4", Timestamp: now.Add(-2 * time.Hour), Amount: "198.75", Category: "supplies", Description: "cables", Channel: "card"},
			},
		})
	})

	logger := log.New(log.Writer(), "history-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
