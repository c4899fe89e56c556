// Package tileenc defines the opaque tile container encoder (§1, §6): the
// narrow "encode(rows, header) -> bytes" boundary the tile builder writes
// through, without needing to know the final on-disk tile format. This
// mirrors the teacher's encode.Encoder interface — a pluggable boundary
// between a generic producer (the pyramid builder) and one of several
// concrete encodings — generalized from "image in, tile bytes out" to "rows
// and a header in, tile bytes out".
package tileenc

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Header carries the metadata a tile encoder needs alongside its rows:
// which attributes are present (so readers can interpret columns present in
// some rows and absent in others) and the node's canonical grid code.
type Header struct {
	// ColsByName lists every column name present in at least one of
	// this tile's rows, in no particular order.
	ColsByName []string `msgpack:"colsByName"`
	// GridCode is the canonical string form of the node's bounds
	// (geo.Bounds.String()).
	GridCode string `msgpack:"gridCode"`
}

// Encoder is the opaque tile container boundary: it serializes a node's
// cluster rows plus header into the bytes written to the node's tile file.
// Exactly one concrete implementation is provided (MsgpackEncoder); the
// real production encoder (e.g. a vector-tile/MVT writer) is out of scope,
// the same way the teacher's Encoder implementations other than the one
// actually exercised by a given run are swapped in by format flag.
type Encoder interface {
	Encode(rows []map[string]float64, header Header) ([]byte, error)
	Format() string
}

// MsgpackEncoder serializes a tile as a single MessagePack value: a map
// with "header" and "rows" keys. It is the concrete stand-in for the real
// tile container format, consistent with every other on-disk artifact in
// this pipeline (tree.msg, per-node info files, scratch files) being
// MessagePack.
type MsgpackEncoder struct{}

type wireTile struct {
	Header Header               `msgpack:"header"`
	Rows   []map[string]float64 `msgpack:"rows"`
}

// Encode implements Encoder.
func (MsgpackEncoder) Encode(rows []map[string]float64, header Header) ([]byte, error) {
	return msgpack.Marshal(wireTile{Header: header, Rows: rows})
}

// Format implements Encoder.
func (MsgpackEncoder) Format() string { return "msgpack" }

// Decode reverses Encode, for tests and tools that need to inspect a tile's
// contents rather than just produce it.
func Decode(b []byte) (rows []map[string]float64, header Header, err error) {
	var w wireTile
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return nil, Header{}, err
	}
	return w.Rows, w.Header, nil
}
