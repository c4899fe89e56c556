// Package store implements IntermediateStore (§4.7): streaming readers and
// writers of attribute-map records to per-node scratch files. It is
// grounded on the teacher's tile.DiskTileStore — a disk-backed store that
// decouples producers from disk I/O — generalized from caching decoded
// image tiles to streaming schemaless records.
//
// Records are framed as a sequence of independent MessagePack values inside
// a gzip stream (via klauspost/compress, a faster drop-in for the stdlib
// gzip package). Both layers are self-delimiting: a MessagePack map carries
// its own length, and gzip's reader transparently continues past a member
// boundary into the next one (multistream mode, the package default). That
// combination is what lets a file produced by several sequential writer
// sessions be read back as a single contiguous stream of records, per
// §4.7's concatenation-tolerance requirement.
package store

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/SkyTruth/gpsdio-vectortile/internal/record"
)

// RecordWriter streams record.Record values to a scratch file.
type RecordWriter struct {
	f   *os.File
	gz  *gzip.Writer
	enc *msgpack.Encoder
}

// OpenRecordWriter creates (or appends to) the scratch file at path for
// writing. The caller must call Close when done, per §4.7's contract.
func OpenRecordWriter(path string) (*RecordWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	gz := gzip.NewWriter(f)
	return &RecordWriter{f: f, gz: gz, enc: msgpack.NewEncoder(gz)}, nil
}

// Put writes one record.
func (w *RecordWriter) Put(rec record.Record) error {
	return w.enc.Encode(toWire(rec))
}

// Close flushes the gzip member and closes the underlying file.
func (w *RecordWriter) Close() error {
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// RecordReader streams record.Record values back from a scratch file
// produced by one or more RecordWriter sessions.
type RecordReader struct {
	f   *os.File
	gz  *gzip.Reader
	dec *msgpack.Decoder
	cur record.Record
	err error
}

// OpenRecordReader opens the scratch file at path for reading.
func OpenRecordReader(path string) (*RecordReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	gz.Multistream(true)
	return &RecordReader{f: f, gz: gz, dec: msgpack.NewDecoder(gz)}, nil
}

// Scan advances to the next record, returning false at EOF or on error.
func (r *RecordReader) Scan() bool {
	var wire map[string]interface{}
	if err := r.dec.Decode(&wire); err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}
	r.cur = fromWire(wire)
	return true
}

// Record returns the record produced by the most recent Scan call.
func (r *RecordReader) Record() record.Record { return r.cur }

// Err returns the first decode error encountered, if any (io.EOF is not an
// error here).
func (r *RecordReader) Err() error { return r.err }

// Close releases the underlying file handle.
func (r *RecordReader) Close() error {
	gzErr := r.gz.Close()
	fErr := r.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

func toWire(rec record.Record) map[string]interface{} {
	m := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if v.Null {
			m[k] = nil
			continue
		}
		m[k] = v.Num
	}
	return m
}

func fromWire(m map[string]interface{}) record.Record {
	rec := make(record.Record, len(m))
	for k, v := range m {
		if v == nil {
			rec[k] = record.Null
			continue
		}
		if n, ok := asFloat64(v); ok {
			rec[k] = record.Num(n)
		}
	}
	return rec
}

func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
