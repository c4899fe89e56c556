package header

// workspaceTemplate is generate_workspace's literal JSON structure
// (_examples/original_source/gpsdio_vectortile/quad_tree.py:98-206), copied
// field-for-field: the state block's offset/maxoffset/lat/lon/zoom/paused,
// and the whole map.animations[0].args (source/columns/selections) and
// map.options (mapTypeId/styles) blocks, never vary between runs. Only
// state.title, state.time, state.timeExtent, and the animation's args.title
// are populated per run; BuildWorkspace sets those on a fresh clone.
var workspaceTemplate = map[string]interface{}{
	"state": map[string]interface{}{
		"title":      "",
		"offset":     20,
		"maxoffset":  100,
		"lat":        0.0,
		"lon":        0.0,
		"zoom":       3,
		"time":       "",
		"timeExtent": 0.0,
		"paused":     true,
	},
	"map": map[string]interface{}{
		"animations": []interface{}{
			map[string]interface{}{
				"args": map[string]interface{}{
					"title":   "",
					"visible": true,
					"source": map[string]interface{}{
						"type": "TiledBinFormat",
						"args": map[string]interface{}{
							"url": "./",
						},
					},
					"columns": map[string]interface{}{
						"longitude": map[string]interface{}{
							"type":   "Float32",
							"hidden": true,
							"source": map[string]interface{}{"longitude": 1},
						},
						"latitude": map[string]interface{}{
							"type":   "Float32",
							"hidden": true,
							"source": map[string]interface{}{"latitude": 1},
						},
						"sigma": map[string]interface{}{
							"type":   "Float32",
							"source": map[string]interface{}{"sigma": 1},
							"min":    0,
							"max":    1,
						},
						"weight": map[string]interface{}{
							"type":   "Float32",
							"source": map[string]interface{}{"speed": 1},
							"min":    0,
							"max":    1,
						},
						"time": map[string]interface{}{
							"type":   "Float32",
							"hidden": true,
							"source": map[string]interface{}{"datetime": 1},
						},
						"filter": map[string]interface{}{
							"type": "Float32",
							"source": map[string]interface{}{
								"_":               nil,
								"timerange":       -1,
								"active_category": -1,
							},
						},
						"selected": map[string]interface{}{
							"type":   "Float32",
							"hidden": true,
							"source": map[string]interface{}{"selected": 1},
						},
						"hover": map[string]interface{}{
							"type":   "Float32",
							"hidden": true,
							"source": map[string]interface{}{"hover": 1},
						},
					},
					"selections": map[string]interface{}{
						"selected": map[string]interface{}{
							"sortcols": []string{"seriesgroup"},
						},
						"hover": map[string]interface{}{
							"sortcols": []string{"seriesgroup"},
						},
					},
				},
				"type": "ClusterAnimation",
			},
		},
		"options": map[string]interface{}{
			"mapTypeId": "roadmap",
			"styles": []interface{}{
				map[string]interface{}{
					"featureType": "poi",
					"stylers": []interface{}{
						map[string]interface{}{"visibility": "off"},
					},
				},
				map[string]interface{}{
					"featureType": "administrative",
					"stylers": []interface{}{
						map[string]interface{}{"visibility": "simplified"},
					},
				},
				map[string]interface{}{
					"featureType": "administrative.country",
					"stylers": []interface{}{
						map[string]interface{}{"visibility": "on"},
					},
				},
				map[string]interface{}{
					"featureType": "road",
					"stylers": []interface{}{
						map[string]interface{}{"visibility": "off"},
					},
				},
				map[string]interface{}{
					"featureType": "landscape.natural",
					"stylers": []interface{}{
						map[string]interface{}{"visibility": "off"},
					},
				},
			},
		},
	},
}

// cloneTemplate deep-copies workspaceTemplate so BuildWorkspace can set
// per-run fields without mutating the package-level literal. It only needs
// to go as deep as the paths BuildWorkspace actually writes through
// (state, and map.animations[0].args), but copies the whole tree to keep
// the clone safe for concurrent calls.
func cloneTemplate() map[string]interface{} {
	return deepCopyMap(workspaceTemplate)
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(vv)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
