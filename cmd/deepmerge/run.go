// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sam-fredrickson/deepmerge"
	"github.com/sam-fredrickson/deepmerge/internal/codec"
)

type options struct {
	clone    bool
	array    arrayMode
	keys     []string
	out      string
	format   format
	diff     bool
	logLevel string
}

func (o options) mergeOptions() (deepmerge.Options, error) {
	mergeOpts := deepmerge.Options{
		Clone:      o.clone,
		ArrayMerge: o.array.Strategy(),
	}

	var keys []string
	for _, key := range o.keys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) > 0 {
		if o.array != "" && o.array != "concat" {
			return mergeOpts, fmt.Errorf("--keys cannot be combined with --array %s", o.array)
		}
		mergeOpts.ArrayMerge = deepmerge.ByKey(keys...)
	}

	return mergeOpts, nil
}

// Run merges files in order and writes the result, or its diff against the first
// file, to output.
func Run(opts options, files []string, output io.Writer, logger *zap.Logger) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to merge")
	}
	mergeOpts, err := opts.mergeOptions()
	if err != nil {
		return err
	}

	outputFormat := codec.Format(opts.format)
	docs := make([]any, 0, len(files))
	for _, file := range files {
		doc, fileFormat, err := readDocument(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		logger.Debug("loaded document", zap.String("file", file), zap.Stringer("format", fileFormat))
		docs = append(docs, doc)
		if outputFormat == "" {
			outputFormat = fileFormat
		}
	}

	merged, err := deepmerge.All(docs, mergeOpts)
	if err != nil {
		return fmt.Errorf("merge failed while processing files %v: %w", files, err)
	}

	marshaled, err := outputFormat.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal result as %s: %w", outputFormat, err)
	}
	logger.Debug("merged documents", zap.Int("count", len(docs)), zap.Stringer("format", outputFormat))

	if opts.diff {
		before, err := outputFormat.Marshal(docs[0])
		if err != nil {
			return fmt.Errorf("failed to marshal %s as %s: %w", files[0], outputFormat, err)
		}
		return writeDiff(output, files[0], before, marshaled, colorEnabled(output))
	}

	if _, err := output.Write(marshaled); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func readDocument(file string) (any, codec.Format, error) {
	f, err := codec.DetectFormat(file)
	if err != nil {
		return nil, "", err
	}

	contents, err := os.ReadFile(file)
	if err != nil {
		return nil, f, err
	}

	doc, err := f.Unmarshal(contents)
	if err != nil {
		return nil, f, err
	}
	return doc, f, nil
}

type arrayMode string

func (m *arrayMode) String() string {
	return string(*m)
}

func (m *arrayMode) Set(value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if value != "" && deepmerge.ArrayMergeByName(value) == nil {
		return fmt.Errorf("array mode %q is invalid (expected concat, union, replace, or index)", value)
	}
	*m = arrayMode(value)
	return nil
}

func (m *arrayMode) Type() string {
	return "string"
}

// Strategy returns the selected array strategy, or nil for the default.
func (m arrayMode) Strategy() deepmerge.ArrayMergeFunc {
	if m == "" {
		return nil
	}
	return deepmerge.ArrayMergeByName(string(m))
}

type format codec.Format

func (f *format) String() string {
	return string(*f)
}

func (f *format) Set(value string) error {
	parsed, err := codec.ParseFormat(value)
	if err != nil {
		return err
	}
	*f = format(parsed)
	return nil
}

func (f *format) Type() string {
	return "string"
}
