package store

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// RowWriter streams plain float64-valued rows — cluster summary rows
// (§4.1 to_summary_row) — to a file, using the same self-delimiting
// MessagePack-over-gzip framing as RecordWriter.
type RowWriter struct {
	f   *os.File
	gz  *gzip.Writer
	enc *msgpack.Encoder
}

// OpenRowWriter creates (or appends to) the file at path.
func OpenRowWriter(path string) (*RowWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	gz := gzip.NewWriter(f)
	return &RowWriter{f: f, gz: gz, enc: msgpack.NewEncoder(gz)}, nil
}

// Put writes one row.
func (w *RowWriter) Put(row map[string]float64) error {
	return w.enc.Encode(row)
}

// Close flushes and closes the underlying file.
func (w *RowWriter) Close() error {
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// RowReader streams rows back from a file written by RowWriter.
type RowReader struct {
	f   *os.File
	gz  *gzip.Reader
	dec *msgpack.Decoder
	cur map[string]float64
	err error
}

// OpenRowReader opens the file at path for reading.
func OpenRowReader(path string) (*RowReader, error) {
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
	return &RowReader{f: f, gz: gz, dec: msgpack.NewDecoder(gz)}, nil
}

// Scan advances to the next row, returning false at EOF or on error.
func (r *RowReader) Scan() bool {
	var row map[string]float64
	if err := r.dec.Decode(&row); err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}
	r.cur = row
	return true
}

// Row returns the row produced by the most recent Scan call.
func (r *RowReader) Row() map[string]float64 { return r.cur }

// Err returns the first decode error encountered, if any.
func (r *RowReader) Err() error { return r.err }

// Close releases the underlying file handle.
func (r *RowReader) Close() error {
	gzErr := r.gz.Close()
	fErr := r.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}
