// Command vectortile-generate-headers loads a previously saved and tiled
// quadtree topology and writes the `header` and `workspace` files (§6). It
// takes no arguments beyond the standard help, operating on the current
// working directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/SkyTruth/gpsdio-vectortile/internal/header"
	"github.com/SkyTruth/gpsdio-vectortile/internal/persist"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vectortile-generate-headers\n\n")
		fmt.Fprintf(os.Stderr, "Load the quadtree saved by vectortile-generate-tiles and write header/workspace.\n")
	}
	flag.Parse()

	if err := run("."); err != nil {
		log.Fatalf("vectortile-generate-headers: %v", err)
	}
}

func run(dir string) error {
	tree, filename, err := persist.Load(dir)
	if err != nil {
		return fmt.Errorf("loading tree: %w", err)
	}

	name := tilesetName(filename)

	headerData, err := header.Build(tree.Root, name)
	if err != nil {
		return fmt.Errorf("building header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "header"), headerData, 0o644); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	workspaceData, err := header.BuildWorkspace(tree.Root, name)
	if err != nil {
		return fmt.Errorf("building workspace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "workspace"), workspaceData, 0o644); err != nil {
		return fmt.Errorf("writing workspace: %w", err)
	}

	log.Printf("vectortile-generate-headers: wrote header and workspace for %s", name)
	return nil
}

// tilesetName derives a tileset name/title from the original input
// filename recorded in tree.msg, stripping directory and extension.
func tilesetName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
