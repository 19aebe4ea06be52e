// SPDX-License-Identifier: Apache-2.0

package bench

import (
	"strconv"
	"testing"

	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/deepmerge"
)

const (
	numUsers    = 100
	numServices = 50
	basePort    = 8000
)

// generateLargeBase creates a large base configuration with multiple sections.
func generateLargeBase() map[string]any {
	users := make([]any, numUsers)
	for i := 0; i < numUsers; i++ {
		name := "user" + strconv.Itoa(i)
		users[i] = map[string]any{
			"id":    i,
			"name":  name,
			"email": name + "@example.com",
			"role":  "member",
			"settings": map[string]any{
				"notifications": true,
				"theme":         "light",
				"language":      "en",
			},
		}
	}

	services := make([]any, numServices)
	for i := 0; i < numServices; i++ {
		services[i] = map[string]any{
			"name": "service" + strconv.Itoa(i),
			"port": basePort + i,
			"config": map[string]any{
				"timeout":     30,
				"retries":     3,
				"compression": true,
			},
		}
	}

	return map[string]any{
		"version":  "1.0",
		"users":    users,
		"services": services,
		"global": map[string]any{
			"debug":   false,
			"logging": "info",
			"region":  "us-east-1",
		},
	}
}

// generateOverlays creates overlays that each touch two users and one service.
func generateOverlays(count int) []any {
	overlays := make([]any, count)
	for i := 0; i < count; i++ {
		overlays[i] = map[string]any{
			"users": []any{
				map[string]any{"id": i * 2, "role": "admin"},
				map[string]any{
					"id":       i*2 + 1,
					"settings": map[string]any{"theme": "dark"},
				},
			},
			"services": []any{
				map[string]any{
					"name":   "service" + strconv.Itoa(i),
					"config": map[string]any{"timeout": 60},
				},
			},
		}
	}
	return overlays
}

func withBase(overlays []any) []any {
	return append([]any{generateLargeBase()}, overlays...)
}

func BenchmarkMerge_Small(b *testing.B) {
	opts := deepmerge.Options{ArrayMerge: deepmerge.ByKey("id", "name")}
	base := map[string]any{
		"users": []any{
			map[string]any{"id": 1, "name": "alice"},
			map[string]any{"id": 2, "name": "bob"},
		},
	}
	overlay := map[string]any{
		"users": []any{
			map[string]any{"id": 1, "role": "admin"},
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = deepmerge.Merge(base, overlay, opts)
	}
}

func BenchmarkAll(b *testing.B) {
	tests := []struct {
		name     string
		overlays int
		opts     deepmerge.Options
	}{
		{"Medium", 5, deepmerge.Options{ArrayMerge: deepmerge.ByKey("id", "name")}},
		{"Large", 20, deepmerge.Options{ArrayMerge: deepmerge.ByKey("id", "name")}},
		{"ManySmallOverlays", 50, deepmerge.Options{ArrayMerge: deepmerge.ByKey("id")}},
		{"Concat", 20, deepmerge.Options{}},
		{"Clone", 20, deepmerge.Options{Clone: true, ArrayMerge: deepmerge.ByKey("id", "name")}},
	}

	for _, tt := range tests {
		b.Run(tt.name, func(b *testing.B) {
			merger := deepmerge.NewMerger(tt.opts)
			trees := withBase(generateOverlays(tt.overlays))

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := merger.All(trees); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMerge_DeepNesting(b *testing.B) {
	opts := deepmerge.Options{ArrayMerge: deepmerge.ByKey("id")}

	nest := func(items []any) map[string]any {
		var tree any = map[string]any{"items": items}
		for _, level := range []string{"level4", "level3", "level2", "level1"} {
			tree = map[string]any{level: tree}
		}
		return tree.(map[string]any)
	}
	base := nest([]any{
		map[string]any{"id": 1, "value": "a"},
		map[string]any{"id": 2, "value": "b"},
	})
	overlay := nest([]any{
		map[string]any{"id": 1, "value": "updated"},
		map[string]any{"id": 3, "value": "c"},
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = deepmerge.Merge(base, overlay, opts)
	}
}

func BenchmarkMerge_ScalarOverridesOnly(b *testing.B) {
	base := map[string]any{
		"a": 1,
		"b": 2,
		"c": 3,
		"d": 4,
		"e": 5,
		"f": map[string]any{
			"g": 6,
			"h": 7,
			"i": 8,
		},
	}
	overlay := map[string]any{
		"a": 10,
		"c": 30,
		"f": map[string]any{
			"h": 70,
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = deepmerge.Merge(base, overlay, deepmerge.Options{})
	}
}

func BenchmarkArrayStrategies(b *testing.B) {
	for _, size := range []int{5, 50, 200} {
		// Half of the source items duplicate target items.
		target := make([]any, size)
		source := make([]any, size)
		for i := 0; i < size; i++ {
			target[i] = i
			if i < size/2 {
				source[i] = i
			} else {
				source[i] = i + size
			}
		}
		base := map[string]any{"tags": target}
		overlay := map[string]any{"tags": source}

		for _, mode := range []string{"concat", "union", "replace", "index"} {
			b.Run(mode+"/"+strconv.Itoa(size), func(b *testing.B) {
				opts := deepmerge.Options{ArrayMerge: deepmerge.ArrayMergeByName(mode)}
				for i := 0; i < b.N; i++ {
					_ = deepmerge.Merge(base, overlay, opts)
				}
			})
		}
	}
}

type benchConfig struct {
	Version  string         `yaml:"version"`
	Users    []benchUser    `yaml:"users"`
	Services []benchService `yaml:"services"`
	Global   map[string]any `yaml:"global"`
}

type benchUser struct {
	ID       int            `yaml:"id" dm:"primary"`
	Name     string         `yaml:"name"`
	Role     string         `yaml:"role"`
	Settings map[string]any `yaml:"settings"`
}

type benchService struct {
	Name   string         `yaml:"name" dm:"primary"`
	Port   int            `yaml:"port"`
	Config map[string]any `yaml:"config"`
}

func BenchmarkTypedMerger(b *testing.B) {
	merger, err := deepmerge.NewTypedMerger[benchConfig](deepmerge.Options{})
	if err != nil {
		b.Fatal(err)
	}
	trees := withBase(generateOverlays(20))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := merger.All(trees); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMergeMarshal_YAML(b *testing.B) {
	docs := make([][]byte, 0, 6)
	for _, tree := range withBase(generateOverlays(5)) {
		data, err := yaml.Marshal(tree)
		if err != nil {
			b.Fatal(err)
		}
		docs = append(docs, data)
	}
	opts := deepmerge.Options{ArrayMerge: deepmerge.ByKey("id", "name")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := deepmerge.MergeMarshal(opts, yaml.Unmarshal, yaml.Marshal, docs...); err != nil {
			b.Fatal(err)
		}
	}
}
