// SPDX-License-Identifier: Apache-2.0

package deepmerge_test

import (
	"fmt"
	"log"

	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/deepmerge"
)

func ExampleMerge() {
	base := map[string]any{
		"server": map[string]any{"port": 80, "host": "localhost"},
		"tags":   []any{"a"},
	}
	overlay := map[string]any{
		"server": map[string]any{"port": 8080},
		"tags":   []any{"b"},
	}

	fmt.Println(deepmerge.Merge(base, overlay, deepmerge.Options{}))

	// Output:
	// map[server:map[host:localhost port:8080] tags:[a b]]
}

func ExampleAll() {
	merged, err := deepmerge.All([]any{
		map[string]any{"a": 1},
		map[string]any{"b": 2},
		map[string]any{"a": 3},
	}, deepmerge.Options{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(merged)

	// Output:
	// map[a:3 b:2]
}

func ExampleByKey() {
	base := map[string]any{"users": []any{
		map[string]any{"name": "alice", "role": "user"},
		map[string]any{"name": "bob", "role": "user"},
	}}
	overlay := map[string]any{"users": []any{
		map[string]any{"name": "alice", "role": "admin"},
	}}

	fmt.Println(deepmerge.Merge(base, overlay, deepmerge.Options{ArrayMerge: deepmerge.ByKey("name")}))

	// Output:
	// map[users:[map[name:alice role:admin] map[name:bob role:user]]]
}

func ExampleOptions_customMerge() {
	// Replace the "env" mapping wholesale; merge everything else normally.
	opts := deepmerge.Options{
		CustomMerge: func(key any) deepmerge.MergeFunc {
			if key == "env" {
				return func(_, source any, opts *deepmerge.Options) any {
					return opts.CloneValue(source)
				}
			}
			return nil
		},
	}

	base := map[string]any{"env": map[string]any{"A": "1"}, "meta": map[string]any{"x": 1}}
	overlay := map[string]any{"env": map[string]any{"B": "2"}, "meta": map[string]any{"y": 2}}
	fmt.Println(deepmerge.Merge(base, overlay, opts))

	// Output:
	// map[env:map[B:2] meta:map[x:1 y:2]]
}

// Example using TypedMerger with composite primary keys and field-specific array strategies.
func ExampleTypedMerger() {
	// Define your config structure with dm tags
	type Endpoint struct {
		Region string `yaml:"region" dm:"primary"`
		Name   string `yaml:"name" dm:"primary"`
		URL    string `yaml:"url"`
	}

	type Config struct {
		Endpoints []Endpoint `yaml:"endpoints"`
		Tags      []string   `yaml:"tags" dm:"array=union"`
	}

	// Create a typed merger
	merger, err := deepmerge.NewTypedMerger[Config](deepmerge.Options{})
	if err != nil {
		log.Fatal(err)
	}

	// Base configuration
	base := []byte(`
endpoints:
  - region: us-east
    name: api
    url: v1.example.com
  - region: us-west
    name: api
    url: v1-west.example.com
tags: [prod, stable]
`)

	// Overlay configuration
	overlay := []byte(`
endpoints:
  - region: us-east
    name: api
    url: v2.example.com
tags: [stable, latest]
`)

	// Merge
	result, err := merger.MergeMarshal(yaml.Unmarshal, yaml.Marshal, base, overlay)
	if err != nil {
		log.Fatal(err)
	}

	// Parse result
	var config Config
	if err := yaml.Unmarshal(result, &config); err != nil {
		log.Fatal(err)
	}

	// Display results
	for _, ep := range config.Endpoints {
		fmt.Printf("%s/%s: %s\n", ep.Region, ep.Name, ep.URL)
	}
	fmt.Printf("Tags: %v\n", config.Tags)

	// Output:
	// us-east/api: v2.example.com
	// us-west/api: v1-west.example.com
	// Tags: [prod stable latest]
}
