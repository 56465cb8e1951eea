package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"room-triage/models"
)

// CSVWriter exports ranked scored listings to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write([]string{
		"index", "score", "url", "title", "sender", "monthly_prices", "furnishings",
		"flatmates", "total_rooms", "available", "location", "best_minutes",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteScored writes one row per listing. scores must be parallel to listings.
func (c *CSVWriter) WriteScored(listings []models.ScoredListing, scores []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(scores) != len(listings) {
		return fmt.Errorf("csv: %d listings but %d scores", len(listings), len(scores))
	}

	for i, l := range listings {
		prices := make([]string, 0, len(l.Prices))
		for _, p := range l.Prices {
			prices = append(prices, strconv.Itoa(p.MonthlyAmount))
		}
		best := make([]string, 0, len(l.Distances))
		for _, d := range l.Distances {
			if r, ok := d.BestRoute(); ok {
				best = append(best, d.Destination+"="+strconv.Itoa(r.DurationMinutes))
			}
		}
		location := ""
		if l.Location != nil {
			location = l.Location.MapURL()
		}
		row := []string{
			strconv.Itoa(l.Index),
			strconv.Itoa(scores[i]),
			l.URL,
			l.Title,
			l.Sender(),
			strings.Join(prices, "|"),
			l.Furnishings,
			l.Flatmates,
			l.TotalRooms,
			l.Available,
			location,
			strings.Join(best, "|"),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
