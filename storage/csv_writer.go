package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
)

var csvHeader = []string{
	"run_id", "created_at", "source", "tier", "category", "brand", "model", "version",
	"min_year", "max_year", "transmission", "mileage", "price", "kept", "market_average", "url",
}

// CSVWriter appends archived observations to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens (or creates) the CSV file at path for appending. The
// header row is written only to a new, empty file. Intermediate
// directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, eris.Wrap(err, "csv: create output dir")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open file %q", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, eris.Wrap(err, "csv: stat")
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, eris.Wrap(err, "csv: write header")
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

var _ Archive = (*CSVWriter)(nil)

// Record appends one row per observation of the valuation.
func (c *CSVWriter) Record(_ context.Context, v *models.Valuation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	created := v.CreatedAt.Format(time.RFC3339)
	for _, r := range Rows(v) {
		row := []string{
			r.RunID,
			created,
			r.Source,
			r.Tier,
			r.Category,
			r.Brand,
			r.Model,
			r.Version,
			itoa(r.MinYear),
			itoa(r.MaxYear),
			r.Transmission,
			itoa(r.Mileage),
			strconv.FormatInt(r.Price, 10),
			strconv.FormatBool(r.Kept),
			strconv.FormatInt(r.Average, 10),
			r.URL,
		}
		if err := c.writer.Write(row); err != nil {
			return eris.Wrap(err, "csv: write row")
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
