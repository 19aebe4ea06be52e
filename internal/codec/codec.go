// SPDX-License-Identifier: Apache-2.0

// Package codec decodes and encodes the document formats the commands accept.
//
// YAML mappings decode to [yaml.MapSlice] so merged output keeps the key order of
// its inputs. JSON and TOML have no ordered representation here; their mappings
// decode to map[string]any and are written with sorted keys.
package codec

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
)

// Format names a document serialization format.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
	TOML Format = "toml"
)

var formats = map[string]Format{
	"yaml": YAML,
	"yml":  YAML,
	"json": JSON,
	"toml": TOML,
}

// ParseFormat returns the format named by s. The empty string yields the empty
// Format, which callers treat as "not chosen yet".
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	f, ok := formats[s]
	if !ok {
		return "", fmt.Errorf("invalid format %q (expected json, yaml, or toml)", s)
	}
	return f, nil
}

// DetectFormat returns the format implied by the extension of path.
func DetectFormat(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f, ok := formats[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file format: %q", filepath.Ext(path))
	}
	return f, nil
}

func (f Format) String() string {
	return string(f)
}

// Unmarshal decodes data into a document tree.
func (f Format) Unmarshal(data []byte) (any, error) {
	var doc any
	var err error
	switch f {
	case YAML:
		err = yaml.UnmarshalWithOptions(data, &doc, yaml.UseOrderedMap())
	case JSON:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		err = json.Unmarshal(data, &doc)
	case TOML:
		var table map[string]any
		err = toml.Unmarshal(data, &table)
		doc = table
	default:
		return nil, fmt.Errorf("invalid format %q", string(f))
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Marshal encodes a document tree.
func (f Format) Marshal(doc any) ([]byte, error) {
	switch f {
	case YAML:
		return yaml.Marshal(doc)
	case JSON:
		out, err := json.MarshalIndent(Plain(doc), "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case TOML:
		table, ok := Plain(doc).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("toml documents must be a table, got %T", doc)
		}
		return toml.Marshal(table)
	default:
		return nil, fmt.Errorf("invalid format %q", string(f))
	}
}

// Plain converts ordered and non-string-keyed mappings in doc into
// map[string]any, recursively. Other values are returned unchanged.
func Plain(doc any) any {
	switch v := doc.(type) {
	case yaml.MapSlice:
		out := make(map[string]any, len(v))
		for _, item := range v {
			out[keyString(item.Key)] = Plain(item.Value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Plain(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[keyString(k)] = Plain(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Plain(item)
		}
		return out
	default:
		return doc
	}
}

func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprint(key)
}
