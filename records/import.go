package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const seedsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["seeds"],
  "properties": {
    "dims": {
      "type": "array",
      "items": {"type": "integer", "minimum": 0},
      "minItems": 3,
      "maxItems": 3
    },
    "seeds": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["center"],
        "properties": {
          "idx": {"type": "number", "exclusiveMinimum": 0},
          "center": {
            "type": "array",
            "items": {"type": "number"},
            "minItems": 3,
            "maxItems": 3
          },
          "hsz": {"type": "number", "minimum": 0},
          "manual": {"type": "number"},
          "properties": {
            "type": "object",
            "additionalProperties": {"type": "number"}
          },
          "categories": {
            "type": "object",
            "additionalProperties": {"type": "number"}
          }
        },
        "additionalProperties": false
      }
    }
  }
}`

var (
	compiledSeedsSchema *jsonschema.Schema
	seedsSchemaErr      error
	seedsSchemaOnce     sync.Once
)

func seedsJSONSchema() (*jsonschema.Schema, error) {
	seedsSchemaOnce.Do(func() {
		compiledSeedsSchema, seedsSchemaErr = jsonschema.CompileString("seeds.json", seedsSchema)
	})
	return compiledSeedsSchema, seedsSchemaErr
}

type seedJSON struct {
	Idx        *float32           `json:"idx"`
	Center     [3]float32         `json:"center"`
	Hsz        *float32           `json:"hsz"`
	Manual     *float32           `json:"manual"`
	Properties map[string]float32 `json:"properties"`
	Categories map[string]float32 `json:"categories"`
}

type seedsJSON struct {
	Dims  *[3]int    `json:"dims"`
	Seeds []seedJSON `json:"seeds"`
}

// ImportSeedsJSON builds a directory from a JSON seed list after validating it.
// Seeds without an explicit index are numbered after the largest given index.
// Property and category values missing for a seed are NaN.
func ImportSeedsJSON(r io.Reader) (*Directory, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	sch, err := seedsJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("compile seed schema: %w", err)
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse seed JSON: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("invalid seed JSON: %w", err)
	}
	var in seedsJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode seed JSON: %w", err)
	}

	d := New()
	if in.Dims != nil {
		d.SetDims(in.Dims[0], in.Dims[1], in.Dims[2])
	}
	n := len(in.Seeds)
	if n == 0 {
		return d, nil
	}
	x, y, z := make([]float32, n), make([]float32, n), make([]float32, n)
	for i, s := range in.Seeds {
		x[i], y[i], z[i] = s.Center[0], s.Center[1], s.Center[2]
	}
	if err := d.AppendXYZ(x, y, z); err != nil {
		return nil, err
	}

	var maxIdx float32
	for _, s := range in.Seeds {
		if s.Idx != nil {
			maxIdx = max(maxIdx, *s.Idx)
		}
	}
	idx := make([]float32, n)
	hsz := nanSlice(n)
	manual := nanSlice(n)
	for i, s := range in.Seeds {
		if s.Idx != nil {
			idx[i] = *s.Idx
		} else {
			maxIdx = float32(math.Floor(float64(maxIdx))) + 1
			idx[i] = maxIdx
		}
		if s.Hsz != nil {
			hsz[i] = *s.Hsz
		}
		if s.Manual != nil {
			manual[i] = *s.Manual
		}
	}
	for _, col := range []struct {
		name   string
		values []float32
	}{{FieldIdx, idx}, {FieldSeedHsz, hsz}, {FieldSeedManual, manual}} {
		if err := d.SetList(col.name, col.values); err != nil {
			return nil, err
		}
	}

	for _, name := range columnNames(in.Seeds, func(s seedJSON) map[string]float32 { return s.Properties }) {
		values := nanSlice(n)
		for i, s := range in.Seeds {
			if v, found := s.Properties[name]; found {
				values[i] = v
			}
		}
		if err := d.SetList(name, values); err != nil {
			return nil, err
		}
	}
	for _, name := range columnNames(in.Seeds, func(s seedJSON) map[string]float32 { return s.Categories }) {
		values := nanSlice(n)
		for i, s := range in.Seeds {
			if v, found := s.Categories[name]; found {
				values[i] = v
			}
		}
		if err := d.AddCategory(name, values); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// columnNames returns the sorted union of attribute names over all seeds.
func columnNames(seeds []seedJSON, attrs func(seedJSON) map[string]float32) []string {
	var names []string
	for _, s := range seeds {
		for name := range attrs(s) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return slices.Compact(names)
}
