package quadtree

import (
	"math/rand"
	"os"
	"testing"

	"github.com/SkyTruth/gpsdio-vectortile/internal/colmap"
	"github.com/SkyTruth/gpsdio-vectortile/internal/record"
	"github.com/SkyTruth/gpsdio-vectortile/internal/tileenc"
)

func setupDriver(t *testing.T, cfg Config, recs []record.Record) (dir string, tree *Quadtree, driver *Driver) {
	t.Helper()
	dir = t.TempDir()
	tree = New(cfg)
	writeSourceFile(t, dir, tree.Root, recs)
	tree.Root.Count = len(recs)

	mapper := colmap.New([]colmap.Mapping{
		{Output: "latitude", Expr: "lat"},
		{Output: "longitude", Expr: "lon"},
		{Output: "speed", Expr: "speed"},
	})
	driver = NewDriver(dir, tree, mapper, tileenc.MsgpackEncoder{})
	return dir, tree, driver
}

// Scenario #1 (§8): three identical-position records, single leaf tile.
func TestScenarioSingleLeafTile(t *testing.T) {
	recs := []record.Record{
		{"lat": record.Num(0), "lon": record.Num(0), "speed": record.Num(1)},
		{"lat": record.Num(0), "lon": record.Num(0), "speed": record.Num(2)},
		{"lat": record.Num(0), "lon": record.Num(0), "speed": record.Num(3)},
	}
	dir, tree, driver := setupDriver(t, Config{MaxCount: 16000, Remove: true, ClusteringLevels: 6}, recs)

	if err := driver.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !tree.Root.IsLeaf() {
		t.Fatalf("root should remain a leaf for 3 records under max_count")
	}

	if err := driver.Tile(); err != nil {
		t.Fatalf("Tile: %v", err)
	}

	rows, _, err := tileenc.Decode(readFile(t, tree.Root.TilePath(dir)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["speed"] != 2 {
		t.Errorf("speed mean = %v, want 2", rows[0]["speed"])
	}
	got := rows[0]["speed_stddev"]
	want := 0.816496580927726
	if abs(got-want) > 1e-6 {
		t.Errorf("speed stddev = %v, want %v", got, want)
	}
}

// Scenario #2 (§8): 20 records spread across all four quadrants, max_count=4.
func TestScenarioQuadrantDistribution(t *testing.T) {
	var recs []record.Record
	quadrantCenters := [][2]float64{{45, -90}, {45, 90}, {-45, -90}, {-45, 90}}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		c := quadrantCenters[i%4]
		recs = append(recs, record.Record{
			"lat":   record.Num(c[0] + rng.Float64()),
			"lon":   record.Num(c[1] + rng.Float64()),
			"speed": record.Num(float64(i)),
		})
	}
	dir, tree, driver := setupDriver(t, Config{MaxCount: 4, Remove: true, ClusteringLevels: 6}, recs)

	if err := driver.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tree.Root.IsLeaf() {
		t.Fatalf("root should have split for 20 records under max_count=4")
	}
	for i, c := range tree.Root.Children {
		if c.Count == 0 {
			t.Errorf("quadrant %d got no records", i)
		}
	}

	if err := driver.Tile(); err != nil {
		t.Fatalf("Tile: %v", err)
	}

	rows, _, err := tileenc.Decode(readFile(t, tree.Root.TilePath(dir)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rows) > 4 {
		t.Fatalf("root tile has %d rows, want <= 4", len(rows))
	}
}

// Scenario #3 (§8): 17,000 identical records, deep recursion, single cluster
// with count=17000 at the root.
func TestScenarioDeepRecursionIdenticalPoints(t *testing.T) {
	const n = 17000
	recs := make([]record.Record, n)
	for i := range recs {
		recs[i] = record.Record{"lat": record.Num(10), "lon": record.Num(10), "speed": record.Num(1)}
	}
	// Identical points never separate across a split, so without a depth
	// bound the build phase would recurse forever chasing the single
	// quadrant that always contains all of them; max_depth is exactly the
	// escape hatch §3/§9 describe for this degenerate case. The leaf this
	// bottoms out at still holds all 17000 records and is tiled by the
	// leaf path, producing one cluster either way.
	depth := 24
	dir, tree, driver := setupDriver(t, Config{MaxCount: 16000, Remove: true, ClusteringLevels: 6, MaxDepth: &depth}, recs)

	if err := driver.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tree.Root.IsLeaf() {
		t.Fatalf("root should have partitioned for 17000 records over max_count=16000")
	}

	if err := driver.Tile(); err != nil {
		t.Fatalf("Tile: %v", err)
	}

	rows, _, err := tileenc.Decode(readFile(t, tree.Root.TilePath(dir)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want exactly 1 cluster for identical points", len(rows))
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return b
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
