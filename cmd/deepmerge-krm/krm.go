// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/sam-fredrickson/deepmerge"
	"github.com/sam-fredrickson/deepmerge/internal/codec"
)

// KRM annotation constants.
const (
	// AnnotationBase is the base prefix for all deepmerge annotations.
	AnnotationBase = "config.deepmerge.io/"

	// AnnotationID is a correlation key grouping ConfigMaps for a single merge operation.
	AnnotationID = AnnotationBase + "id"

	// AnnotationOrder defines the merge order for ConfigMaps with the same ID.
	// Lower numbers are merged first. The ConfigMap with order=0 is the base.
	AnnotationOrder = AnnotationBase + "order"

	// AnnotationFinalName specifies the desired metadata.name of the final merged ConfigMap.
	// Must be present on the base ConfigMap (order=0).
	AnnotationFinalName = AnnotationBase + "final-name"

	// AnnotationArray selects how lists combine when this ConfigMap is merged in:
	// concat, union, replace, or index.
	AnnotationArray = AnnotationBase + "array"

	// AnnotationKeys specifies comma-separated primary key names used to match list
	// items when this ConfigMap is merged in. Example: "id,name,uuid".
	AnnotationKeys = AnnotationBase + "keys"

	// AnnotationClone requests deep copies of merged values ("true" or "false").
	AnnotationClone = AnnotationBase + "clone"
)

// TypeMeta describes an individual object in a ResourceList.
type TypeMeta struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Kind       string `yaml:"kind" json:"kind"`
}

// ObjectMeta is metadata that all persisted resources must have.
type ObjectMeta struct {
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// ConfigMap represents a Kubernetes ConfigMap resource.
type ConfigMap struct {
	TypeMeta   `yaml:",inline" json:",inline"`
	ObjectMeta `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Data       map[string]string `yaml:"data,omitempty" json:"data,omitempty"`
}

// ResourceList is the input/output format for KRM functions.
// See: https://github.com/kubernetes-sigs/kustomize/blob/master/cmd/config/docs/api-conventions/functions-spec.md
type ResourceList struct {
	APIVersion string           `yaml:"apiVersion" json:"apiVersion"`
	Kind       string           `yaml:"kind" json:"kind"`
	Items      []map[string]any `yaml:"items" json:"items"`
}

// configMapGroup is a set of ConfigMaps with the same ID that merge into one.
type configMapGroup struct {
	id         string
	configMaps []*orderedConfigMap
}

// orderedConfigMap wraps a ConfigMap with its merge order and the options used
// when it is merged onto the ConfigMaps before it.
type orderedConfigMap struct {
	order     int
	configMap ConfigMap
	options   deepmerge.Options
	finalName string // Only meaningful on the base (order=0)
}

// Run executes the KRM function, reading a ResourceList from in and writing the
// transformed ResourceList to out.
func Run(in io.Reader, out io.Writer, logger *zap.Logger) error {
	rl, err := readResourceList(in)
	if err != nil {
		return fmt.Errorf("failed to read ResourceList: %w", err)
	}

	groups, passthrough, err := groupConfigMaps(rl)
	if err != nil {
		return fmt.Errorf("failed to group ConfigMaps: %w", err)
	}

	merged := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		cm, err := mergeConfigMapGroup(group)
		if err != nil {
			return fmt.Errorf("failed to merge ConfigMap group %q: %w", group.id, err)
		}
		logger.Debug("merged ConfigMap group",
			zap.String("id", group.id),
			zap.Int("configMaps", len(group.configMaps)))
		merged = append(merged, cm)
	}

	outputRL := ResourceList{
		APIVersion: rl.APIVersion,
		Kind:       "ResourceList",
		Items:      append(passthrough, merged...),
	}
	if outputRL.APIVersion == "" {
		outputRL.APIVersion = "config.kubernetes.io/v1"
	}

	if err := writeResourceList(out, outputRL); err != nil {
		return fmt.Errorf("failed to write ResourceList: %w", err)
	}
	return nil
}

func readResourceList(r io.Reader) (*ResourceList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var rl ResourceList
	if err := yaml.Unmarshal(data, &rl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ResourceList: %w", err)
	}
	return &rl, nil
}

func writeResourceList(w io.Writer, rl ResourceList) error {
	data, err := yaml.Marshal(rl)
	if err != nil {
		return fmt.Errorf("failed to marshal ResourceList: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// groupConfigMaps separates annotated ConfigMaps from passthrough resources.
// Groups are returned sorted by ID.
func groupConfigMaps(rl *ResourceList) ([]*configMapGroup, []map[string]any, error) {
	byID := make(map[string]*configMapGroup)
	var passthrough []map[string]any

	for _, item := range rl.Items {
		cm, isConfigMap, err := parseConfigMap(item)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse resource: %w", err)
		}

		id := cm.Annotations[AnnotationID]
		if !isConfigMap || id == "" {
			passthrough = append(passthrough, item)
			continue
		}

		ordered, err := parseConfigMapAnnotations(cm)
		if err != nil {
			return nil, nil, fmt.Errorf("ConfigMap %q: %w", cm.Name, err)
		}

		if byID[id] == nil {
			byID[id] = &configMapGroup{id: id}
		}
		byID[id].configMaps = append(byID[id].configMaps, ordered)
	}

	groups := make([]*configMapGroup, 0, len(byID))
	for _, group := range byID {
		if err := prepareGroup(group); err != nil {
			return nil, nil, fmt.Errorf("ConfigMap group %q: %w", group.id, err)
		}
		groups = append(groups, group)
	}
	slices.SortFunc(groups, func(a, b *configMapGroup) int {
		return strings.Compare(a.id, b.id)
	})

	return groups, passthrough, nil
}

// parseConfigMap attempts to parse a resource item as a ConfigMap.
func parseConfigMap(item map[string]any) (ConfigMap, bool, error) {
	apiVersion, _ := item["apiVersion"].(string)
	kind, _ := item["kind"].(string)
	if kind != "ConfigMap" {
		return ConfigMap{}, false, nil
	}

	// Round trip through YAML to convert the generic item to a ConfigMap.
	data, err := yaml.Marshal(item)
	if err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to marshal item: %w", err)
	}
	var cm ConfigMap
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to unmarshal ConfigMap: %w", err)
	}

	if cm.APIVersion == "" {
		cm.APIVersion = apiVersion
	}
	if cm.Kind == "" {
		cm.Kind = kind
	}
	return cm, true, nil
}

func parseConfigMapAnnotations(cm ConfigMap) (*orderedConfigMap, error) {
	annotations := cm.Annotations

	orderStr := annotations[AnnotationOrder]
	if orderStr == "" {
		return nil, fmt.Errorf("missing required annotation %q", AnnotationOrder)
	}
	order, err := strconv.Atoi(strings.TrimSpace(orderStr))
	if err != nil {
		return nil, fmt.Errorf("invalid %q annotation: %w", AnnotationOrder, err)
	}

	opts, err := parseMergeOptions(annotations)
	if err != nil {
		return nil, fmt.Errorf("failed to parse merge options: %w", err)
	}

	return &orderedConfigMap{
		order:     order,
		configMap: cm,
		options:   opts,
		finalName: annotations[AnnotationFinalName],
	}, nil
}

// parseMergeOptions builds deepmerge.Options from annotations.
func parseMergeOptions(annotations map[string]string) (deepmerge.Options, error) {
	var opts deepmerge.Options

	if mode := strings.TrimSpace(annotations[AnnotationArray]); mode != "" {
		opts.ArrayMerge = deepmerge.ArrayMergeByName(mode)
		if opts.ArrayMerge == nil {
			return opts, fmt.Errorf("invalid %q annotation: unknown array mode %q (must be concat, union, replace, or index)",
				AnnotationArray, mode)
		}
	}

	if keys := parseKeys(annotations[AnnotationKeys]); len(keys) > 0 {
		if opts.ArrayMerge != nil && !strings.EqualFold(strings.TrimSpace(annotations[AnnotationArray]), "concat") {
			return opts, fmt.Errorf("%q cannot be combined with %q", AnnotationKeys, AnnotationArray)
		}
		opts.ArrayMerge = deepmerge.ByKey(keys...)
	}

	if clone := strings.TrimSpace(annotations[AnnotationClone]); clone != "" {
		value, err := strconv.ParseBool(clone)
		if err != nil {
			return opts, fmt.Errorf("invalid %q annotation: %w", AnnotationClone, err)
		}
		opts.Clone = value
	}

	return opts, nil
}

func parseKeys(s string) []string {
	var keys []string
	for _, key := range strings.Split(s, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// prepareGroup sorts a group by order and validates its base ConfigMap.
func prepareGroup(group *configMapGroup) error {
	slices.SortStableFunc(group.configMaps, func(a, b *orderedConfigMap) int {
		return a.order - b.order
	})

	if len(group.configMaps) == 0 {
		return fmt.Errorf("empty ConfigMap group")
	}

	base := group.configMaps[0]
	if base.order != 0 {
		return fmt.Errorf("no base ConfigMap with order=0 (lowest order is %d)", base.order)
	}
	if len(group.configMaps) > 1 && group.configMaps[1].order == 0 {
		return fmt.Errorf("multiple base ConfigMaps with order=0 (%q and %q)",
			base.configMap.Name, group.configMaps[1].configMap.Name)
	}
	if base.finalName == "" {
		return fmt.Errorf("base ConfigMap %q missing required annotation %q", base.configMap.Name, AnnotationFinalName)
	}
	return nil
}

// mergeConfigMapGroup merges all ConfigMaps in a group into a single ConfigMap.
func mergeConfigMapGroup(group *configMapGroup) (map[string]any, error) {
	base := group.configMaps[0]

	var dataKeys []string
	for _, cm := range group.configMaps {
		for key := range cm.configMap.Data {
			if !slices.Contains(dataKeys, key) {
				dataKeys = append(dataKeys, key)
			}
		}
	}
	slices.Sort(dataKeys)

	mergedData := make(map[string]string, len(dataKeys))
	for _, dataKey := range dataKeys {
		merged, err := mergeDataKey(group, dataKey)
		if err != nil {
			return nil, fmt.Errorf("failed to merge data key %q: %w", dataKey, err)
		}
		if merged != "" {
			mergedData[dataKey] = merged
		}
	}

	result := ConfigMap{
		TypeMeta: TypeMeta{
			APIVersion: "v1",
			Kind:       "ConfigMap",
		},
		ObjectMeta: ObjectMeta{
			Name:        base.finalName,
			Namespace:   base.configMap.Namespace,
			Annotations: filterDeepmergeAnnotations(base.configMap.Annotations),
			Labels:      base.configMap.Labels,
		},
		Data: mergedData,
	}

	// Round trip through YAML to produce a generic ResourceList item.
	data, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged ConfigMap: %w", err)
	}
	var resultMap map[string]any
	if err := yaml.Unmarshal(data, &resultMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal merged ConfigMap: %w", err)
	}
	return resultMap, nil
}

// mergeDataKey merges a single data key across the ConfigMaps of a group that
// carry it. Each overlay is merged with its own ConfigMap's options, and the
// result is written back in the format the key's extension names.
func mergeDataKey(group *configMapGroup, dataKey string) (string, error) {
	type contribution struct {
		name    string
		content string
		options deepmerge.Options
	}
	var contributions []contribution
	for _, cm := range group.configMaps {
		if value := cm.configMap.Data[dataKey]; value != "" {
			contributions = append(contributions, contribution{cm.configMap.Name, value, cm.options})
		}
	}

	switch len(contributions) {
	case 0:
		return "", nil
	case 1:
		return contributions[0].content, nil
	}

	f := detectFormatFromKey(dataKey)
	var result any
	for i, c := range contributions {
		doc, err := f.Unmarshal([]byte(c.content))
		if err != nil {
			return "", fmt.Errorf("ConfigMap %q (format: %s): %w", c.name, f, err)
		}
		if i == 0 {
			result = doc
			continue
		}
		result = deepmerge.Merge(result, doc, c.options)
	}

	out, err := f.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal merged %s: %w", f, err)
	}
	return string(out), nil
}

// detectFormatFromKey detects the format from the data key name (e.g., "config.json" → JSON).
// Keys without a recognized extension are YAML, as is common in Kubernetes.
func detectFormatFromKey(dataKey string) codec.Format {
	f, err := codec.DetectFormat(dataKey)
	if err != nil {
		return codec.YAML
	}
	return f
}

// filterDeepmergeAnnotations removes config.deepmerge.io annotations from a map.
func filterDeepmergeAnnotations(annotations map[string]string) map[string]string {
	filtered := make(map[string]string)
	for key, value := range annotations {
		if !strings.HasPrefix(key, AnnotationBase) {
			filtered[key] = value
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
