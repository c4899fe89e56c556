package quadtree

import (
	"fmt"

	"github.com/SkyTruth/gpsdio-vectortile/internal/store"
)

// Partition splits parent's scratch file into four child scratch files
// (§4.2). The four children are returned in the fixed NW/NE/SW/SE order of
// parent.Bounds.Children(), with Count already set from the split; their
// scratch files are fully written and closed by the time Partition returns.
//
// Records lacking lat/lon are dropped. Each surviving record is written to
// the first child (in NW/NE/SW/SE order) whose rectangle contains its
// point, so the five files involved (one reader, four writers) are all open
// simultaneously for a single streaming pass, per §5's resource policy.
func Partition(dir string, parent *QuadtreeNode) ([4]*QuadtreeNode, error) {
	var children [4]*QuadtreeNode
	bounds := parent.Bounds.Children()

	reader, err := store.OpenRecordReader(parent.SourcePath(dir))
	if err != nil {
		return children, fmt.Errorf("partitioning %s: opening source: %w", parent.Bounds, err)
	}
	defer reader.Close()

	var writers [4]*store.RecordWriter
	for i, b := range bounds {
		children[i] = NewNode(b)
		w, err := store.OpenRecordWriter(children[i].SourcePath(dir))
		if err != nil {
			closeWriters(writers[:i])
			return children, fmt.Errorf("partitioning %s: opening child %s: %w", parent.Bounds, b, err)
		}
		writers[i] = w
	}

	for reader.Scan() {
		rec := reader.Record()
		lon, lonOK := rec.Lon()
		lat, latOK := rec.Lat()
		if !lonOK || !latOK {
			continue
		}
		for i, b := range bounds {
			if b.Contains(lon, lat) {
				if err := writers[i].Put(rec); err != nil {
					closeWriters(writers[:])
					return children, fmt.Errorf("partitioning %s: writing child %s: %w", parent.Bounds, b, err)
				}
				children[i].Count++
				break
			}
		}
	}
	if err := reader.Err(); err != nil {
		closeWriters(writers[:])
		return children, fmt.Errorf("partitioning %s: reading source: %w", parent.Bounds, err)
	}

	for i, w := range writers {
		if err := w.Close(); err != nil {
			return children, fmt.Errorf("partitioning %s: closing child %s: %w", parent.Bounds, bounds[i], err)
		}
	}
	return children, nil
}

func closeWriters(writers []*store.RecordWriter) {
	for _, w := range writers {
		if w != nil {
			w.Close()
		}
	}
}
