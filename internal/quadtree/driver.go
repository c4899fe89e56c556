package quadtree

import (
	"fmt"
	"os"

	"github.com/SkyTruth/gpsdio-vectortile/internal/colmap"
	"github.com/SkyTruth/gpsdio-vectortile/internal/geo"
	"github.com/SkyTruth/gpsdio-vectortile/internal/tilebuild"
	"github.com/SkyTruth/gpsdio-vectortile/internal/tileenc"
)

// Driver orchestrates the two-phase pipeline over a Quadtree (§4.3): Build
// recurses top-down, splitting nodes and hollowing parents; Tile walks the
// resulting topology post-order, building each node's tile from either raw
// records (leaves) or merged child summaries (interior nodes). It is
// grounded on the teacher's tile.Generate, which likewise drives a pyramid
// in two clearly separated passes (build/prepare, then produce) rather than
// interleaving them.
type Driver struct {
	dir    string
	tree   *Quadtree
	mapper *colmap.Mapper
	enc    tileenc.Encoder
}

// NewDriver returns a Driver that reads and writes scratch/tile files under
// dir for tree, mapping columns with mapper and encoding tiles with enc.
func NewDriver(dir string, tree *Quadtree, mapper *colmap.Mapper, enc tileenc.Encoder) *Driver {
	return &Driver{dir: dir, tree: tree, mapper: mapper, enc: enc}
}

// Build runs phase 1 (§4.3) from the tree's root. The root's scratch file
// must already exist at Root.SourcePath(dir) with Root.Count set by the
// caller (the ingest step, out of this package's scope).
func (d *Driver) Build() error {
	return d.build(d.tree.Root, d.tree.Config.MaxDepth, true)
}

// build stops this node as a leaf (no partition, no children) once its
// count has dropped to or below max_count, or once max_depth has been
// exhausted (§4.3 step 1) — whichever comes first. Otherwise it partitions
// the node and recurses unconditionally into all four children, each of
// which applies the same stopping rule at its own entry; this is
// equivalent to, but simpler than, gating each recursive call on the
// child's count, since the guard at function entry handles it uniformly
// for every node including the root.
func (d *Driver) build(node *QuadtreeNode, depthRemaining *int, isRoot bool) error {
	atMaxDepth := depthRemaining != nil && *depthRemaining <= 0
	if node.Count <= d.tree.Config.MaxCount || atMaxDepth {
		return nil
	}

	children, err := Partition(d.dir, node)
	if err != nil {
		return err
	}
	node.Children = children

	if d.tree.Config.Remove && !isRoot {
		if err := os.Remove(node.SourcePath(d.dir)); err != nil {
			return fmt.Errorf("hollowing %s: %w", node.Bounds, err)
		}
		node.Hollow = true
	}

	var nextDepth *int
	if depthRemaining != nil {
		nd := *depthRemaining - 1
		nextDepth = &nd
	}

	for _, c := range children {
		if err := d.build(c, nextDepth, false); err != nil {
			return err
		}
	}
	return nil
}

// Tile runs phase 2 (§4.3): a post-order traversal that builds every node's
// tile and cluster summary, interior nodes strictly after all four of their
// children.
func (d *Driver) Tile() error {
	builder := tilebuild.New(d.dir, d.tree.Config.ClusteringLevels, d.tree.Config.MaxCount, d.mapper, d.enc)
	return d.tile(d.tree.Root, builder)
}

func (d *Driver) tile(node *QuadtreeNode, builder *tilebuild.Builder) error {
	if node.IsLeaf() {
		return builder.BuildFromLeaf(node.Bounds, node.ColsByName)
	}
	for _, c := range node.Children {
		if err := d.tile(c, builder); err != nil {
			return err
		}
	}

	var childBounds [4]geo.Bounds
	for i, c := range node.Children {
		childBounds[i] = c.Bounds
	}
	if err := builder.BuildFromChildren(node.Bounds, childBounds, node.ColsByName); err != nil {
		return err
	}

	// The node's own mapped cluster rows already bound the data it holds,
	// but fold in children's ranges too so the invariant in §4.5 ("the
	// union of children's cols_by_name ranges is contained in the
	// parent's") holds unconditionally rather than relying on the
	// coarsening merge never shifting a mean outside its inputs' range.
	for _, c := range node.Children {
		node.ColsByName.Merge(c.ColsByName)
	}
	return nil
}
