// Package persist implements TreePersistence (§4.8): durably recording a
// Quadtree's topology to disk as tree.msg plus one <bounds>-info.msg per
// node, and reconstructing it later without ever re-reading scratch or
// cluster files. It is grounded on the teacher's pmtiles.Writer two-pass
// atomic-write pattern (temp file, then an explicit finalize step) and on
// distr1-distri's use of renameio.TempFile/CloseAtomicallyReplace for
// crash-safe single-file writes.
package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/SkyTruth/gpsdio-vectortile/internal/quadtree"
)

// treeFile is the wire shape of tree.msg: the Quadtree-wide config named in
// §3, independent of topology.
type treeFile struct {
	MaxDepth         *int   `msgpack:"maxDepth"`
	MaxCount         int    `msgpack:"maxCount"`
	Remove           bool   `msgpack:"remove"`
	ClusteringLevels int    `msgpack:"clusteringLevels"`
	Filename         string `msgpack:"filename"`
}

// rangeJSON is one colsByName entry's wire shape: {"min":…, "max":…}, the
// same object update_colsByName builds in quad_tree_node.py — not a
// [min,max] array.
type rangeJSON struct {
	Min float64 `msgpack:"min"`
	Max float64 `msgpack:"max"`
}

// nodeInfo is the wire shape of one <bounds>-info.msg. Bounds is carried
// explicitly even though it's recoverable from the filename, matching the
// wire shape named in §6.
type nodeInfo struct {
	Bounds     string               `msgpack:"bounds"`
	Count      int                  `msgpack:"count"`
	Hollow     bool                 `msgpack:"hollow"`
	ColsByName map[string]rangeJSON `msgpack:"colsByName"`
}

func treePath(dir string) string {
	return filepath.Join(dir, "tree.msg")
}

// writeAtomic msgpack-encodes v and replaces path with it atomically, per
// the teacher's rename-into-place idiom.
func writeAtomic(path string, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer t.Cleanup()
	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Save writes tree.msg and every node's info file under dir (§4.8). It walks
// the whole topology regardless of which nodes are hollow, since a node's
// own info file records its own count/cols_by_name independent of whether
// its scratch file still exists. filename is the original input file the
// tree was ingested from, carried through for the record.
func Save(dir string, tree *quadtree.Quadtree, filename string) error {
	tf := treeFile{
		MaxDepth:         tree.Config.MaxDepth,
		MaxCount:         tree.Config.MaxCount,
		Remove:           tree.Config.Remove,
		ClusteringLevels: tree.Config.ClusteringLevels,
		Filename:         filename,
	}
	if err := writeAtomic(treePath(dir), tf); err != nil {
		return err
	}
	return saveNode(dir, tree.Root)
}

func saveNode(dir string, node *quadtree.QuadtreeNode) error {
	info := nodeInfo{
		Bounds:     node.Bounds.String(),
		Count:      node.Count,
		Hollow:     node.Hollow,
		ColsByName: make(map[string]rangeJSON, len(node.ColsByName)),
	}
	for name, r := range node.ColsByName {
		info.ColsByName[name] = rangeJSON{Min: r.Min, Max: r.Max}
	}
	if err := writeAtomic(node.InfoPath(dir), info); err != nil {
		return fmt.Errorf("saving node %s: %w", node.Bounds, err)
	}
	if node.IsLeaf() {
		return nil
	}
	for _, c := range node.Children {
		if err := saveNode(dir, c); err != nil {
			return err
		}
	}
	return nil
}

// Load reconstructs a Quadtree from tree.msg and the info files under dir
// (§4.8), along with the original input filename recorded at Save time. A
// node is a leaf in the reconstructed tree exactly when none of its four
// children have an info file on disk — Save always writes a child's info
// file before returning, so a missing file unambiguously means "never
// partitioned," never "partitioned but not yet saved." Load never opens a
// scratch or cluster file; only info files.
func Load(dir string) (tree *quadtree.Quadtree, filename string, err error) {
	data, err := os.ReadFile(treePath(dir))
	if err != nil {
		return nil, "", fmt.Errorf("loading tree: %w", err)
	}
	var tf treeFile
	if err := msgpack.Unmarshal(data, &tf); err != nil {
		return nil, "", fmt.Errorf("loading tree: decoding tree.msg: %w", err)
	}

	tree = quadtree.New(quadtree.Config{
		MaxDepth:         tf.MaxDepth,
		MaxCount:         tf.MaxCount,
		Remove:           tf.Remove,
		ClusteringLevels: tf.ClusteringLevels,
	})
	if err := loadNode(dir, tree.Root); err != nil {
		return nil, "", err
	}
	return tree, tf.Filename, nil
}

func loadNode(dir string, node *quadtree.QuadtreeNode) error {
	data, err := os.ReadFile(node.InfoPath(dir))
	if err != nil {
		return fmt.Errorf("loading node %s: %w", node.Bounds, err)
	}
	var info nodeInfo
	if err := msgpack.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("loading node %s: decoding info: %w", node.Bounds, err)
	}
	node.Count = info.Count
	node.Hollow = info.Hollow
	for name, r := range info.ColsByName {
		node.ColsByName[name] = quadtree.Range{Min: r.Min, Max: r.Max}
	}

	childBounds := node.Bounds.Children()
	var children [4]*quadtree.QuadtreeNode
	anyExist := false
	for i, cb := range childBounds {
		candidate := quadtree.NewNode(cb)
		if _, err := os.Stat(candidate.InfoPath(dir)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("probing child %s of %s: %w", cb, node.Bounds, err)
		}
		children[i] = candidate
		anyExist = true
	}
	if !anyExist {
		return nil
	}
	for i, cb := range childBounds {
		if children[i] == nil {
			// Save always writes all four children together (Partition
			// never produces fewer than four), so a missing sibling here
			// would mean a corrupt or partially-written save directory.
			return fmt.Errorf("loading node %s: child %s info file missing while siblings exist", node.Bounds, cb)
		}
	}
	node.Children = children
	for _, c := range node.Children {
		if err := loadNode(dir, c); err != nil {
			return err
		}
	}
	return nil
}
