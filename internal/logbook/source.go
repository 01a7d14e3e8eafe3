package logbook

import (
	"context"
	"io"
)

// RecordSource yields raw records one at a time. Next returns io.EOF once the
// source is exhausted; any other error ends the run.
type RecordSource interface {
	Next(ctx context.Context) (Record, error)
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []Record
	pos     int
}

func NewSliceSource(records ...Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}
