// Command vectortile-generate-tree ingests a vessel-position CSV file,
// builds the quadtree topology (§4.3 build phase), and saves it to the
// working directory (§4.8, §6). It is the first of the three CLI
// subcommands named in §6, following the teacher's cmd/geotiff2pmtiles
// shape: flag.Parse, log.Fatalf on error, os.Exit(1) on failure.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/SkyTruth/gpsdio-vectortile/internal/persist"
	"github.com/SkyTruth/gpsdio-vectortile/internal/quadtree"
	"github.com/SkyTruth/gpsdio-vectortile/internal/record"
	"github.com/SkyTruth/gpsdio-vectortile/internal/store"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vectortile-generate-tree <infile>\n\n")
		fmt.Fprintf(os.Stderr, "Ingest a vessel-position CSV file, build the quadtree, and save it to the working directory.\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	infile := flag.Arg(0)

	if err := run(infile, "."); err != nil {
		log.Fatalf("vectortile-generate-tree: %v", err)
	}
}

func run(infile, dir string) error {
	f, err := os.Open(infile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", infile, err)
	}
	defer f.Close()

	scanner, err := record.NewCSVScanner(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", infile, err)
	}

	tree := quadtree.New(quadtree.DefaultConfig())

	w, err := store.OpenRecordWriter(tree.Root.SourcePath(dir))
	if err != nil {
		return fmt.Errorf("opening scratch file: %w", err)
	}
	count := 0
	for scanner.Scan() {
		if err := w.Put(scanner.Record()); err != nil {
			w.Close()
			return fmt.Errorf("writing scratch file: %w", err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		w.Close()
		return fmt.Errorf("scanning %s: %w", infile, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing scratch file: %w", err)
	}
	tree.Root.Count = count

	driver := quadtree.NewDriver(dir, tree, nil, nil)
	if err := driver.Build(); err != nil {
		return fmt.Errorf("building tree: %w", err)
	}

	if err := persist.Save(dir, tree, infile); err != nil {
		return fmt.Errorf("saving tree: %w", err)
	}
	log.Printf("vectortile-generate-tree: ingested %d records from %s", count, infile)
	return nil
}
