// Package colmap implements the column mapping layer (§4.6): translating a
// raw record's input field names into the fixed set of output column names
// the rest of the pipeline understands, by evaluating one expression per
// output column against the record's attributes.
//
// Expression evaluation is grounded on the one pack repository that embeds
// expr-lang/expr, ClusterCockpit-cc-backend's job classification tagger
// (internal/tagger/classifyJob.go): expressions are expr.Compile'd once up
// front with expr.AsFloat64(), then expr.Run against a map[string]any
// environment built per record. Custom functions (bits2float) are made
// available to expressions by being placed directly in that environment
// map, the same loose-typing approach the tagger uses for metric limits and
// job properties rather than a statically typed expr.Env struct.
package colmap

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/SkyTruth/gpsdio-vectortile/internal/record"
)

// Bits2Float reinterprets the low 32 bits of an integer value as an IEEE-754
// float32, per §6. The seriesgroup mapping reaches it through the
// bits2float expression function to carry an MMSI through a float-typed
// tile column without lossy numeric conversion.
func Bits2Float(bits int) float64 {
	return float64(math.Float32frombits(uint32(int32(bits))))
}

// Float2Bits is the inverse of Bits2Float: it recovers the original integer
// bit pattern from a float32-valued column. It is not referenced by any
// default mapping expression, but is exported for callers (tests, and any
// downstream tool that needs to recover an MMSI from a tile column) that
// need to undo Bits2Float exactly.
func Float2Bits(f float64) int {
	return int(int32(math.Float32bits(float32(f))))
}

// Mapping names one output column and the expression that computes it from
// an input record's attributes.
type Mapping struct {
	// Output is the column name the rest of the pipeline consumes
	// (e.g. "latitude", "seriesgroup").
	Output string
	// Expr is evaluated against the record's attributes, extended with
	// the colmap built-in functions, to produce the output column's value.
	Expr string
}

// DefaultMappings is the fixed set of recognized column mappings (§4.6).
// Column mapping is not user-configurable: this set is always used.
var DefaultMappings = []Mapping{
	{Output: "datetime", Expr: "timestamp"},
	{Output: "latitude", Expr: "lat"},
	{Output: "longitude", Expr: "lon"},
	{Output: "course", Expr: "course"},
	{Output: "speed", Expr: "speed"},
	{Output: "series", Expr: "track"},
	{Output: "seriesgroup", Expr: "bits2float(mmsi)"},
}

// Mapper evaluates DefaultMappings against records, producing output rows
// keyed by the recognized output column names.
type Mapper struct {
	mappings []Mapping
	programs []*vm.Program
}

// New compiles mappings (DefaultMappings for production use) once up front.
// Compilation failures are programmer errors — malformed expressions in a
// fixed, hardcoded mapping set — so New panics rather than threading a
// compile-time error through every caller.
func New(mappings []Mapping) *Mapper {
	m := &Mapper{mappings: mappings, programs: make([]*vm.Program, len(mappings))}
	for i, mp := range mappings {
		prog, err := expr.Compile(mp.Expr, expr.AsFloat64())
		if err != nil {
			panic(fmt.Sprintf("colmap: invalid mapping expression %q for %q: %v", mp.Expr, mp.Output, err))
		}
		m.programs[i] = prog
	}
	return m
}

// environment builds the expr evaluation environment for rec: its numeric
// attributes plus the bits2float/float2bits built-ins. Null and non-numeric
// attributes are simply absent from the environment; an expression that
// references a missing key fails to evaluate, which Map below treats as a
// null output column rather than an error. Attribute values are float64, so
// bits2float converts its argument to an integer before calling Bits2Float
// and yields nil (a failed evaluation) for a missing argument.
func environment(rec record.Record) map[string]any {
	env := make(map[string]any, len(rec)+2)
	for name, v := range rec {
		if v.Null {
			continue
		}
		env[name] = v.Num
	}
	env["bits2float"] = func(v any) any {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		return Bits2Float(int(f))
	}
	env["float2bits"] = Float2Bits
	return env
}

// Map evaluates every compiled mapping against rec, returning the output
// record. An output column whose expression references a missing or null
// input attribute is present in the result as record.Null, preserving null
// propagation through the mapping layer (§4.6).
func (m *Mapper) Map(rec record.Record) (record.Record, error) {
	env := environment(rec)
	out := make(record.Record, len(m.mappings))
	for i, mp := range m.mappings {
		v, err := expr.Run(m.programs[i], env)
		if err != nil {
			// A missing environment key surfaces from expr as a run
			// error (undefined variable), not a typed nil: treat it
			// as a null output column rather than a mapping failure.
			out[mp.Output] = record.Null
			continue
		}
		if v == nil {
			out[mp.Output] = record.Null
			continue
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("colmap: mapping %q produced non-numeric value %v (%T)", mp.Output, v, v)
		}
		out[mp.Output] = record.Num(f)
	}
	return out, nil
}
