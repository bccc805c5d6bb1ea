package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"salesdw/internal/record"
)

// CSVSource streams rows from a delimited text file, using the first line as
// the header (field names) and each subsequent line as one row.
type CSVSource struct {
	rc     io.ReadCloser
	reader *csv.Reader
	header []string
	cur    record.Row
	err    error
}

// NewCSVSource reads the header line and returns a source over the remaining
// records. delimiter 0 means comma.
func NewCSVSource(rc io.ReadCloser, delimiter rune) (*CSVSource, error) {
	r := csv.NewReader(rc)
	if delimiter != 0 {
		r.Comma = delimiter
	}
	r.ReuseRecord = true
	// The reference file may carry ragged rows; field count is enforced
	// against the header below, not by the csv reader.
	r.FieldsPerRecord = -1

	hdr, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("source: read csv header: %w", err)
	}

	header := make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		header[i] = h
	}

	return &CSVSource{rc: rc, reader: r, header: header}, nil
}

// Header exposes the field names read from the first line.
func (s *CSVSource) Header() []string { return s.header }

func (s *CSVSource) Next() bool {
	if s.err != nil {
		return false
	}

	rec, err := s.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = fmt.Errorf("source: csv read: %w", err)
		return false
	}

	row := make(record.Row, len(s.header))
	for i, name := range s.header {
		if i >= len(rec) {
			break
		}
		row[name] = strings.TrimSpace(rec[i])
	}
	s.cur = row
	return true
}

func (s *CSVSource) Row() record.Row { return s.cur }

func (s *CSVSource) Err() error { return s.err }

func (s *CSVSource) Close() error { return s.rc.Close() }
