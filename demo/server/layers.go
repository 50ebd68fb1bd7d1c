package main

import (
	"bytes"
	"net/http"

	odkwkt "github.com/tingold/odk-wkt"
)

// layer holds one geometry kind encoded in both served formats.
type layer struct {
	fgb     []byte
	geojson []byte
}

type layerSet struct {
	kinds  []odkwkt.Kind
	byKind map[odkwkt.Kind]layer
}

// buildLayers encodes every kind that produced at least one geometry.
func buildLayers(t odkwkt.Table, report *odkwkt.Report, properties []string) (*layerSet, error) {
	set := &layerSet{byKind: make(map[odkwkt.Kind]layer)}

	for _, kind := range odkwkt.Kinds {
		fc, err := odkwkt.FeatureCollection(t, report, kind, properties)
		if err != nil {
			return nil, err
		}
		if len(fc.Features) == 0 {
			continue
		}

		opts := odkwkt.DefaultLayerOptions()
		opts.Name = kind.String()
		opts.Description = "Converted ODK " + kind.String() + " geometries"

		var fgb, gj bytes.Buffer
		if err := odkwkt.WriteFlatGeobuf(&fgb, fc, opts); err != nil {
			return nil, err
		}
		if err := odkwkt.WriteGeoJSON(&gj, fc); err != nil {
			return nil, err
		}

		set.kinds = append(set.kinds, kind)
		set.byKind[kind] = layer{fgb: fgb.Bytes(), geojson: gj.Bytes()}
	}

	return set, nil
}

// lookup picks the layer named by the kind query parameter, or the first
// available layer when none is given.
func (s *layerSet) lookup(r *http.Request) (layer, bool) {
	name := r.URL.Query().Get("kind")
	if name == "" {
		if len(s.kinds) == 0 {
			return layer{}, false
		}
		return s.byKind[s.kinds[0]], true
	}

	kind, err := odkwkt.ParseKind(name)
	if err != nil {
		return layer{}, false
	}
	l, ok := s.byKind[kind]
	return l, ok
}

func newMux(layers *layerSet, client http.FileSystem) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/data.fgb", func(w http.ResponseWriter, r *http.Request) {
		l, ok := layers.lookup(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_, _ = w.Write(l.fgb)
	})

	mux.HandleFunc("/data.geojson", func(w http.ResponseWriter, r *http.Request) {
		l, ok := layers.lookup(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_, _ = w.Write(l.geojson)
	})

	mux.Handle("/", http.FileServer(client))

	return mux
}
