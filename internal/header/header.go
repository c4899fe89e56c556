// Package header builds the two JSON descriptors named in §6: the tileset
// `header` file and the viewer `workspace` file. The overall assembly
// technique — a map[string]interface{} built by hand and handed to
// json.Marshal — is grounded on the teacher's Writer.buildMetadata; the
// exact field set and nesting is grounded directly on the Python original's
// generate_header/generate_workspace
// (_examples/original_source/gpsdio_vectortile/quad_tree.py:89-206).
package header

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SkyTruth/gpsdio-vectortile/internal/quadtree"
)

// tilesetVersion is fixed per §6; the format has no versioning scheme of
// its own yet.
const tilesetVersion = "0.0.1"

// colsByNameJSON renders a node's ColsByName as the wire shape
// generate_header/update_colsByName actually produce: one {"min":…,
// "max":…} object per attribute, not a two-element array.
func colsByNameJSON(cols quadtree.ColsByName) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(cols))
	for name, r := range cols {
		out[name] = map[string]float64{"min": r.Min, "max": r.Max}
	}
	return out
}

// Build returns the `header` file's JSON bytes (§6, quad_tree.py
// generate_header): colsByName from the root node (already bounding every
// descendant's values per §4.5), seriesTilesets hardcoded false (this
// pipeline never emits per-series tile sets, only the single clustered
// pyramid), and the tileset name.
func Build(root *quadtree.QuadtreeNode, tilesetName string) ([]byte, error) {
	doc := map[string]interface{}{
		"colsByName":     colsByNameJSON(root.ColsByName),
		"seriesTilesets": false,
		"tilesetName":    tilesetName,
		"tilesetVersion": tilesetVersion,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("building header: %w", err)
	}
	return data, nil
}

// datetimeMidpointAndExtent reads the root's accumulated "datetime" column
// range (§4.6's datetime mapping, populated on every node by the tile
// phase, in milliseconds since epoch per §3) and returns the timestamp
// midpoint plus a "time extent" of one tenth of the full range, both
// computed exactly as generate_workspace does: neither is converted out of
// the datetime column's native millisecond units. ok is false when no
// record ever produced a datetime value (an empty dataset), in which case
// the caller leaves the template's placeholder fields untouched rather than
// emitting a bogus timestamp.
func datetimeMidpointAndExtent(root *quadtree.QuadtreeNode) (midpoint string, timeExtent float64, ok bool) {
	r, present := root.ColsByName["datetime"]
	if !present {
		return "", 0, false
	}
	midMillis := (r.Min + r.Max) / 2
	extent := (r.Max - r.Min) / 10
	return time.UnixMilli(int64(midMillis)).UTC().Format("2006-01-02T15:04:05.000000Z"), extent, true
}

// BuildWorkspace returns the `workspace` file's JSON bytes (§6): the static
// viewer-configuration template (workspaceTemplate, copied verbatim from
// quad_tree.py's generate_workspace per resolved Open Question 2) with
// state.title, state.time, and state.timeExtent populated from root's
// observed datetime range.
func BuildWorkspace(root *quadtree.QuadtreeNode, title string) ([]byte, error) {
	ws := cloneTemplate()
	state := ws["state"].(map[string]interface{})
	state["title"] = title
	if mid, extent, ok := datetimeMidpointAndExtent(root); ok {
		state["time"] = mid
		state["timeExtent"] = extent
	}
	animArgs := ws["map"].(map[string]interface{})["animations"].([]interface{})[0].(map[string]interface{})["args"].(map[string]interface{})
	animArgs["title"] = title

	data, err := json.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("building workspace: %w", err)
	}
	return data, nil
}
