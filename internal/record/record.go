// Package record defines the schemaless attribute map that flows through the
// pipeline (§3 Record) and the narrow RowScanner interface the real,
// out-of-scope input decoder is expected to satisfy (§1, §2 "RowCodec
// (external)"). A concrete CSV-backed scanner is provided so the CLI front
// ends have something runnable to ingest; it stands in for the real gpsdio
// decoder the way the teacher's cog.Reader stands in for a generic raster
// source.
package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Value is a single attribute: either a finite number or null. Non-numeric
// input is never represented here — it is dropped before a Value is ever
// constructed (§3: "Non-numeric attributes are silently dropped").
type Value struct {
	Null bool
	Num  float64
}

// Num wraps a finite float64 as a present value.
func Num(v float64) Value { return Value{Num: v} }

// Null is the absent/unparseable value.
var Null = Value{Null: true}

// Record is an attribute map keyed by string. Only attributes actually
// present on this row should have an entry — a record never carries a key
// for an attribute no prior record ever set, keeping per-node schema
// discovery (ColsByName) an accurate union of what was actually observed.
type Record map[string]Value

// Lat returns the lat attribute and whether it is present and non-null.
func (r Record) Lat() (float64, bool) {
	return r.numeric("lat")
}

// Lon returns the lon attribute and whether it is present and non-null.
func (r Record) Lon() (float64, bool) {
	return r.numeric("lon")
}

func (r Record) numeric(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v.Null {
		return 0, false
	}
	return v.Num, true
}

// RowScanner is the interface the core quadtree/partitioner code consumes
// to read a stream of records, mirroring bufio.Scanner: call Scan() until it
// returns false, then check Err(). This is the narrow surface the real
// external row decoder (§1) is expected to implement; CSVScanner below is a
// concrete, out-of-scope-standard-format implementation used by the CLI.
type RowScanner interface {
	Scan() bool
	Record() Record
	Err() error
}

// RowSink is the write side of the same external contract: accept decoded
// records one at a time. IntermediateStore writers and the CSV scanner's
// test fixtures both produce against this shape indirectly via RowScanner,
// but a RowSink is useful wherever code needs to feed rows to something
// without caring whether the destination is a file, a channel, or a slice.
type RowSink interface {
	Put(Record) error
}

// CSVScanner decodes a vessel-position CSV stream: a header row naming
// columns, followed by data rows. The recognized geometry columns are "lat"
// and "lon"; a "timestamp" column (RFC3339) is converted to milliseconds
// since epoch, matching §3's "Timestamps are converted at ingest to
// milliseconds since epoch as floating-point." Any other column is parsed
// as a float64 if possible; values that fail to parse as a number are
// dropped from the record rather than aborting the row.
type CSVScanner struct {
	r       *csv.Reader
	columns []string
	cur     Record
	err     error
	done    bool
}

// NewCSVScanner wraps r, reading and consuming the header row immediately.
func NewCSVScanner(r io.Reader) (*CSVScanner, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.ToLower(h))
	}
	return &CSVScanner{r: cr, columns: columns}, nil
}

// Scan advances to the next record, returning false at EOF or on error.
func (s *CSVScanner) Scan() bool {
	if s.done {
		return false
	}
	fields, err := s.r.Read()
	if err == io.EOF {
		s.done = true
		return false
	}
	if err != nil {
		s.err = fmt.Errorf("decoding CSV row: %w", err)
		s.done = true
		return false
	}

	rec := make(Record, len(s.columns))
	for i, col := range s.columns {
		if i >= len(fields) {
			continue
		}
		raw := strings.TrimSpace(fields[i])
		if raw == "" {
			continue
		}
		if col == "timestamp" {
			if ms, ok := parseTimestampMillis(raw); ok {
				rec[col] = Num(ms)
			}
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			rec[col] = Num(v)
		}
		// Non-numeric, non-timestamp values are silently dropped per §3.
	}
	s.cur = rec
	return true
}

// Record returns the record produced by the most recent Scan call.
func (s *CSVScanner) Record() Record { return s.cur }

// Err returns the first error encountered, if any.
func (s *CSVScanner) Err() error { return s.err }

func parseTimestampMillis(raw string) (float64, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return float64(t.UnixMilli()), true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return float64(t.UnixMilli()), true
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, true
	}
	return 0, false
}
