package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aristath/fleet/internal/fsutil"
)

// Save persists the roster in the encoding implied by path's extension.
// The file is replaced atomically; parent directories are created.
// Keys in the existing file that the roster types do not model are carried
// over at the top level, under defaults, and per worker by position.
func Save(cfg *OrchestratorConfig, path string) error {
	format := FormatFor(path)
	data, err := Marshal(cfg, format)
	if err != nil {
		return fmt.Errorf("marshaling roster: %w", err)
	}
	if prev, err := os.ReadFile(path); err == nil {
		merged, err := mergeUnknown(data, prev, format)
		if err != nil {
			return fmt.Errorf("merging roster: %w", err)
		}
		data = merged
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing roster: %w", err)
	}
	return nil
}

// Marshal encodes the roster in the given format.
func Marshal(cfg *OrchestratorConfig, format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(cfg)
	default:
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

var (
	rosterKeys   = fieldKeys(reflect.TypeOf(OrchestratorConfig{}))
	defaultsKeys = fieldKeys(reflect.TypeOf(Defaults{}))
	workerKeys   = fieldKeys(reflect.TypeOf(WorkerSpec{}))
)

// fieldKeys returns the document keys of t's fields.
func fieldKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

// mergeUnknown copies keys the roster types do not model from prev into
// the freshly encoded doc. doc is returned unchanged when prev has none, or
// when prev cannot be decoded.
func mergeUnknown(doc, prev []byte, format Format) ([]byte, error) {
	old, err := decodeMap(prev, format)
	if err != nil {
		return doc, nil
	}
	fresh, err := decodeMap(doc, format)
	if err != nil {
		return nil, err
	}

	changed := copyUnknown(fresh, old, rosterKeys)
	if d, ok := asMap(fresh["defaults"]); ok {
		if od, ok := asMap(old["defaults"]); ok && copyUnknown(d, od, defaultsKeys) {
			changed = true
		}
	}
	workers, oldWorkers := asMaps(fresh["workers"]), asMaps(old["workers"])
	for i := 0; i < len(workers) && i < len(oldWorkers); i++ {
		if copyUnknown(workers[i], oldWorkers[i], workerKeys) {
			changed = true
		}
	}
	if !changed {
		return doc, nil
	}
	return encodeMap(fresh, format)
}

func copyUnknown(dst, src map[string]any, known map[string]bool) bool {
	changed := false
	for k, v := range src {
		if known[k] {
			continue
		}
		if _, ok := dst[k]; !ok {
			dst[k] = v
			changed = true
		}
	}
	return changed
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// asMaps flattens the decoded workers list. TOML yields []map[string]any
// for arrays of tables; JSON and YAML yield []any.
func asMaps(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil
			}
			out = append(out, m)
		}
		return out
	}
	return nil
}

func decodeMap(data []byte, format Format) (map[string]any, error) {
	m := map[string]any{}
	var err error
	switch format {
	case FormatTOML:
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&m)
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	return m, err
}

func encodeMap(m map[string]any, format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(m)
	default:
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}
