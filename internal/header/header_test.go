package header

import (
	"encoding/json"
	"testing"

	"github.com/SkyTruth/gpsdio-vectortile/internal/geo"
	"github.com/SkyTruth/gpsdio-vectortile/internal/quadtree"
)

func TestBuildHeader(t *testing.T) {
	root := quadtree.NewNode(geo.Root())
	root.ColsByName.Update("speed", 1)
	root.ColsByName.Update("speed", 9)
	root.ColsByName.Update("latitude", -10)
	root.ColsByName.Update("latitude", 10)

	data, err := Build(root, "vessel-positions")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["tilesetName"] != "vessel-positions" {
		t.Errorf("tilesetName = %v", doc["tilesetName"])
	}
	if doc["tilesetVersion"] != "0.0.1" {
		t.Errorf("tilesetVersion = %v", doc["tilesetVersion"])
	}
	if doc["seriesTilesets"] != false {
		t.Errorf("seriesTilesets = %v, want false", doc["seriesTilesets"])
	}
	cols, ok := doc["colsByName"].(map[string]interface{})
	if !ok {
		t.Fatalf("colsByName not an object: %T", doc["colsByName"])
	}
	speed, ok := cols["speed"].(map[string]interface{})
	if !ok {
		t.Fatalf("colsByName.speed not an object: %T", cols["speed"])
	}
	if speed["min"] != 1.0 || speed["max"] != 9.0 {
		t.Errorf("colsByName.speed = %v, want {min:1,max:9}", speed)
	}
}

func TestBuildWorkspacePreservesCosmeticFields(t *testing.T) {
	root := quadtree.NewNode(geo.Root())
	root.ColsByName.Update("datetime", 1000)
	root.ColsByName.Update("datetime", 2000)

	data, err := BuildWorkspace(root, "my survey")
	if err != nil {
		t.Fatalf("BuildWorkspace: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	state, ok := doc["state"].(map[string]interface{})
	if !ok {
		t.Fatalf("state field missing or wrong type")
	}
	if state["title"] != "my survey" {
		t.Errorf("state.title = %v", state["title"])
	}
	if state["timeExtent"] != 100.0 {
		t.Errorf("state.timeExtent = %v, want 100", state["timeExtent"])
	}
	if state["zoom"] != 3.0 {
		t.Errorf("state.zoom = %v, want 3 (cosmetic field must be preserved verbatim)", state["zoom"])
	}
	if state["offset"] != 20.0 {
		t.Errorf("state.offset = %v, want 20 (cosmetic field must be preserved verbatim)", state["offset"])
	}

	m, ok := doc["map"].(map[string]interface{})
	if !ok {
		t.Fatalf("map field missing or wrong type")
	}
	animations, ok := m["animations"].([]interface{})
	if !ok || len(animations) != 1 {
		t.Fatalf("map.animations missing or wrong shape: %v", m["animations"])
	}
	anim, ok := animations[0].(map[string]interface{})
	if !ok {
		t.Fatalf("map.animations[0] not an object")
	}
	if anim["type"] != "ClusterAnimation" {
		t.Errorf("map.animations[0].type = %v, want ClusterAnimation", anim["type"])
	}
	args, ok := anim["args"].(map[string]interface{})
	if !ok {
		t.Fatalf("map.animations[0].args missing or wrong type")
	}
	if args["title"] != "my survey" {
		t.Errorf("map.animations[0].args.title = %v, want my survey", args["title"])
	}
	source, ok := args["source"].(map[string]interface{})
	if !ok || source["type"] != "TiledBinFormat" {
		t.Errorf("map.animations[0].args.source = %v, want TiledBinFormat", args["source"])
	}
	options, ok := m["options"].(map[string]interface{})
	if !ok || options["mapTypeId"] != "roadmap" {
		t.Errorf("map.options.mapTypeId = %v, want roadmap (cosmetic field must be preserved verbatim)", options["mapTypeId"])
	}
}

func TestBuildWorkspaceNoDataLeavesTimeEmpty(t *testing.T) {
	root := quadtree.NewNode(geo.Root())
	data, err := BuildWorkspace(root, "empty")
	if err != nil {
		t.Fatalf("BuildWorkspace: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	state, ok := doc["state"].(map[string]interface{})
	if !ok {
		t.Fatalf("state field missing or wrong type")
	}
	if state["time"] != "" {
		t.Errorf("state.time = %v, want empty for a tree with no datetime column", state["time"])
	}
}
