package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVReader fetches a delimited file and parses it into header-keyed rows.
type CSVReader struct {
	fetcher Fetcher
}

// NewCSVReader returns a reader pulling file bytes from fetcher.
func NewCSVReader(fetcher Fetcher) *CSVReader {
	return &CSVReader{fetcher: fetcher}
}

// Read returns the data rows of the file at loc in file order.
func (r *CSVReader) Read(ctx context.Context, loc Location) ([]domain.Row, error) {
	log := logger.FromContext(ctx)

	data, err := r.fetcher.Fetch(ctx, loc)
	if err != nil {
		return nil, err
	}

	rows, err := ParseRows(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("CSVReader.Read %s: %w", loc, err)
	}

	log.Debug().
		Str("source_uri", loc.String()).
		Int("row_count", len(rows)).
		Msg("Parsed source file")

	return rows, nil
}

// ParseRows reads a header row followed by data rows. Header names are trimmed
// and lower-cased. Short rows are padded with empty values and extra cells
// beyond the header are ignored. A file with only a header yields no rows.
func ParseRows(in io.Reader) ([]domain.Row, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: file is empty", domain.ErrMalformedInput)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", domain.ErrMalformedInput, err)
	}
	names := make([]string, len(header))
	blank := true
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(h))
		if names[i] != "" {
			blank = false
		}
	}
	if blank {
		return nil, fmt.Errorf("%w: header is empty", domain.ErrMalformedInput)
	}

	var rows []domain.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", domain.ErrMalformedInput, line, err)
		}

		row := make(domain.Row, len(names))
		for i, name := range names {
			if name == "" {
				continue
			}
			if i < len(rec) {
				row[name] = rec[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
