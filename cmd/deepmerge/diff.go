// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pmezard/go-difflib/difflib"
)

func writeDiff(w io.Writer, name string, before, after []byte, colorize bool) error {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: name,
		ToFile:   "merged",
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("failed to compute diff: %w", err)
	}
	if !colorize {
		_, err = io.WriteString(w, text)
		return err
	}

	header := color.New(color.Bold)
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	for _, c := range []*color.Color{header, added, removed, hunk} {
		c.EnableColor()
	}

	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		body := strings.TrimSuffix(line, "\n")
		newline := line[len(body):]
		switch {
		case body == "":
			b.WriteString(line)
			continue
		case strings.HasPrefix(body, "+++"), strings.HasPrefix(body, "---"):
			body = header.Sprint(body)
		case strings.HasPrefix(body, "+"):
			body = added.Sprint(body)
		case strings.HasPrefix(body, "-"):
			body = removed.Sprint(body)
		case strings.HasPrefix(body, "@@"):
			body = hunk.Sprint(body)
		}
		b.WriteString(body)
		b.WriteString(newline)
	}
	_, err = io.WriteString(w, b.String())
	return err
}

// colorEnabled reports whether w is a terminal that should receive colored output.
func colorEnabled(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
