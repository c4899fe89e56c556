// Package quadtree implements QuadtreeNode, Quadtree, Partitioner, and
// QuadtreeDriver (§3, §4.2, §4.3): the recursive spatial partitioner that
// shards raw records into a tree of geographic tiles. It is grounded on the
// teacher's internal/tile.Generate pyramid loop — processed top-down for
// the build phase, bottom-up (via store-and-merge) for the tile phase —
// generalized from a fixed-depth raster pyramid to a depth-adaptive tree
// whose leaves stop recursing once their row count drops below a
// threshold.
package quadtree

import (
	"path/filepath"

	"github.com/SkyTruth/gpsdio-vectortile/internal/geo"
)

// Range is the observed [min, max] interval for one attribute, as tracked by
// ColsByName (§4.5).
type Range struct {
	Min, Max float64
}

// ColsByName is the per-node schema range tracker (§4.5): for every
// attribute observed anywhere in the node's subtree, the widest [min, max]
// interval seen. Nulls are rejected by Update rather than widening a range
// with a non-value.
type ColsByName map[string]Range

// Update widens name's range to include v. It is the write path the tile
// phase uses (directly and through Merge), matching §4.5's "each emitted
// cluster row updates this map by widening both bounds."
func (c ColsByName) Update(name string, v float64) {
	r, ok := c[name]
	if !ok {
		c[name] = Range{Min: v, Max: v}
		return
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	c[name] = r
}

// Merge widens c to include every range in other. Used when an interior
// node's ColsByName must bound the union of its children's, per the §4
// invariant "cols_by_name at any node bounds the union of its descendants'
// values."
func (c ColsByName) Merge(other ColsByName) {
	for name, r := range other {
		c.Update(name, r.Min)
		c.Update(name, r.Max)
	}
}

// QuadtreeNode is one node of the partition tree (§3). Children is the
// zero value (all nils) for a leaf; a hollow node always has all four
// children populated, matching the Quadtree invariant that children exist
// together or not at all.
type QuadtreeNode struct {
	Bounds     geo.Bounds
	Count      int
	Hollow     bool
	ColsByName ColsByName
	Children   [4]*QuadtreeNode
}

// NewNode returns an empty node for bounds, with no rows counted yet.
func NewNode(bounds geo.Bounds) *QuadtreeNode {
	return &QuadtreeNode{Bounds: bounds, ColsByName: make(ColsByName)}
}

// IsLeaf reports whether the node has no children.
func (n *QuadtreeNode) IsLeaf() bool {
	return n.Children[0] == nil
}

// SourcePath is the node's raw-record scratch file (<bounds>-src.msg),
// deleted once the node is hollowed.
func (n *QuadtreeNode) SourcePath(dir string) string {
	return filepath.Join(dir, n.Bounds.String()+"-src.msg")
}

// ClusterPath is the node's durable cluster summary file
// (<bounds>-cluster.msg), written once in the tile phase.
func (n *QuadtreeNode) ClusterPath(dir string) string {
	return filepath.Join(dir, n.Bounds.String()+"-cluster.msg")
}

// InfoPath is the node's metadata file (<bounds>-info.msg), rewritten on
// every save.
func (n *QuadtreeNode) InfoPath(dir string) string {
	return filepath.Join(dir, n.Bounds.String()+"-info.msg")
}

// TilePath is the node's opaque tile binary (<bbox>), named with the same
// canonical string as the node's bounds since a node's bbox is exactly the
// geographic rectangle its bounds describes.
func (n *QuadtreeNode) TilePath(dir string) string {
	return filepath.Join(dir, n.Bounds.String())
}

// Config holds the Quadtree-wide parameters named in §3.
type Config struct {
	// MaxDepth, if non-nil, bounds recursion depth regardless of row
	// count. Nil means unbounded (row count is the only stopping rule).
	MaxDepth *int
	// MaxCount is the row-count threshold a node must drop to or below
	// before the build phase stops recursing into it. Default 16000.
	MaxCount int
	// Remove, if true (the default), deletes a node's scratch file once
	// it has been partitioned, except for the source root.
	Remove bool
	// ClusteringLevels is how many zoom levels finer than a node's own
	// the initial re-bin grid code is computed at, before coarsening.
	// Default 6.
	ClusteringLevels int
}

// DefaultConfig returns the Quadtree defaults named in §3.
func DefaultConfig() Config {
	return Config{MaxCount: 16000, Remove: true, ClusteringLevels: 6}
}

// Quadtree holds the root node and the parameters governing how it is built
// and tiled.
type Quadtree struct {
	Config Config
	Root   *QuadtreeNode
}

// New returns a Quadtree rooted at the world bounds.
func New(cfg Config) *Quadtree {
	return &Quadtree{Config: cfg, Root: NewNode(geo.Root())}
}
