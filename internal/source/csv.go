// Package source provides the record sources the bulk loader drains: CSV
// uploads with arbitrary headers, the fixed-column legacy export, and class
// exports from the hosted backend.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nzvengeance/flight-logbook/internal/logbook"
)

// CSV reads a header row and yields each following row keyed by header.
type CSV struct {
	r      *csv.Reader
	header []string
}

var _ logbook.RecordSource = (*CSV)(nil)

func NewCSV(r io.Reader) (*CSV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &CSV{r: cr}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return &CSV{r: cr, header: header}, nil
}

// Headers returns the column names from the header row.
func (s *CSV) Headers() []string {
	out := make([]string, len(s.header))
	copy(out, s.header)
	return out
}

// Next returns the next row. Short rows leave trailing columns empty;
// cells beyond the header are dropped.
func (s *CSV) Next(ctx context.Context) (logbook.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.header == nil {
		return nil, io.EOF
	}

	row, err := s.r.Read()
	if err != nil {
		return nil, err
	}

	rec := make(logbook.Record, len(s.header))
	for i, name := range s.header {
		if name == "" {
			continue
		}
		if i < len(row) {
			rec[name] = row[i]
		} else {
			rec[name] = ""
		}
	}
	return rec, nil
}

// Take reads up to n records, stopping early at the end of the source.
func Take(ctx context.Context, src logbook.RecordSource, n int) ([]logbook.Record, error) {
	var out []logbook.Record
	for len(out) < n {
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
