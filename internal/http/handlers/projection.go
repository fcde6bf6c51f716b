package handlers

import (
	"bytes"
	"encoding/json"

	"github.com/geocoder89/tourhub/internal/query"
)

// project renders items as JSON objects limited to the requested fields.
// The id is kept unless explicitly excluded. Stores that cannot project
// return whole records, so this runs for every backend.
func project[T any](items []T, fields []query.Field) ([]map[string]any, error) {
	include := map[string]struct{}{}
	exclude := map[string]struct{}{}
	for _, f := range fields {
		name := f.Name
		if name == "_id" {
			name = "id"
		}
		if f.Exclude {
			exclude[name] = struct{}{}
		} else {
			include[name] = struct{}{}
		}
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}

		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()

		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, err
		}

		for k := range obj {
			if _, ok := exclude[k]; ok {
				delete(obj, k)
				continue
			}
			if len(include) == 0 || k == "id" {
				continue
			}
			if _, ok := include[k]; !ok {
				delete(obj, k)
			}
		}

		out = append(out, obj)
	}

	return out, nil
}
