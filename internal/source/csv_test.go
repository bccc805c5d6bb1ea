package source

import (
	"io"
	"strings"
	"testing"
)

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func csvSource(t *testing.T, data string, delim rune) *CSVSource {
	t.Helper()
	s, err := NewCSVSource(nopCloser{strings.NewReader(data)}, delim)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	return s
}

func TestCSVSource_HeaderAndRows(t *testing.T) {
	t.Parallel()

	s := csvSource(t, "city,region\nSpringfield,Midwest\nShelbyville,Midwest\n", 0)

	var cities []string
	for s.Next() {
		row := s.Row()
		city, ok := row.String("city")
		if !ok {
			t.Fatalf("row missing city: %v", row)
		}
		region, _ := row.String("region")
		if region != "Midwest" {
			t.Fatalf("unexpected region %q", region)
		}
		cities = append(cities, city)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(cities) != 2 || cities[0] != "Springfield" || cities[1] != "Shelbyville" {
		t.Fatalf("unexpected cities: %v", cities)
	}
}

func TestCSVSource_TrimsHeaderAndBOM(t *testing.T) {
	t.Parallel()

	s := csvSource(t, "\uFEFFcity, region\nSpringfield,Midwest\n", 0)

	hdr := s.Header()
	if hdr[0] != "city" || hdr[1] != "region" {
		t.Fatalf("header not normalized: %v", hdr)
	}
}

func TestCSVSource_CustomDelimiter(t *testing.T) {
	t.Parallel()

	s := csvSource(t, "city;region\nSpringfield;Midwest\n", ';')

	if !s.Next() {
		t.Fatalf("expected one row: %v", s.Err())
	}
	if city, _ := s.Row().String("city"); city != "Springfield" {
		t.Fatalf("unexpected city %q", city)
	}
}

func TestCSVSource_ShortRowLeavesTrailingFieldsAbsent(t *testing.T) {
	t.Parallel()

	s := csvSource(t, "city,region\nSpringfield\n", 0)

	if !s.Next() {
		t.Fatalf("expected one row: %v", s.Err())
	}
	if _, ok := s.Row()["region"]; ok {
		t.Fatalf("expected region to be absent for short row")
	}
}

func TestCSVSource_EmptyHeaderFails(t *testing.T) {
	t.Parallel()

	_, err := NewCSVSource(nopCloser{strings.NewReader("")}, 0)
	if err == nil {
		t.Fatalf("expected error for empty input")
	}
}
