// Command vectortile-generate-tiles loads a previously saved quadtree
// topology, runs the tile phase (§4.3, §4.4), and re-saves the tree so its
// freshly computed colsByName is available to vectortile-generate-headers
// (resolved Open Question 3). It takes no arguments beyond the standard
// help, operating on the current working directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/SkyTruth/gpsdio-vectortile/internal/colmap"
	"github.com/SkyTruth/gpsdio-vectortile/internal/persist"
	"github.com/SkyTruth/gpsdio-vectortile/internal/quadtree"
	"github.com/SkyTruth/gpsdio-vectortile/internal/tileenc"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vectortile-generate-tiles\n\n")
		fmt.Fprintf(os.Stderr, "Load the quadtree saved by vectortile-generate-tree, run the tile phase, and re-save it.\n")
	}
	flag.Parse()

	if err := run("."); err != nil {
		log.Fatalf("vectortile-generate-tiles: %v", err)
	}
}

func run(dir string) error {
	tree, filename, err := persist.Load(dir)
	if err != nil {
		return fmt.Errorf("loading tree: %w", err)
	}

	mapper := colmap.New(colmap.DefaultMappings)
	driver := quadtree.NewDriver(dir, tree, mapper, tileenc.MsgpackEncoder{})
	if err := driver.Tile(); err != nil {
		return fmt.Errorf("tiling: %w", err)
	}

	if err := persist.Save(dir, tree, filename); err != nil {
		return fmt.Errorf("saving tree: %w", err)
	}
	log.Printf("vectortile-generate-tiles: tiled %d root records", tree.Root.Count)
	return nil
}
