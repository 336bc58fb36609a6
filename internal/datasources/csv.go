package datasources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/normalize"
)

// CSVReader reads delimited survey tables from disk. The first row is the
// header; values stay strings and are coerced later by the normalizer.
type CSVReader struct{}

func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// Fetch loads the file configured on the source descriptor.
func (r *CSVReader) Fetch(ctx context.Context, src config.SourceMapping) (RawTable, error) {
	rows, err := r.ReadFile(ctx, src.Path)
	if err != nil {
		return RawTable{}, fmt.Errorf("source %q: %w", src.Name, err)
	}
	return RawTable{Source: src.Name, Rows: rows}, nil
}

// ReadFile parses a CSV file into raw rows keyed by header name. Rows with a
// column count different from the header are skipped; the normalizer cannot
// attribute them to a key, so they are unusable either way.
func (r *CSVReader) ReadFile(ctx context.Context, path string) ([]normalize.RawRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	var rows []normalize.RawRow
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}
		if len(record) != len(header) {
			continue
		}
		row := make(normalize.RawRow, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
