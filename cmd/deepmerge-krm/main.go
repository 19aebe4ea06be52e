// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/sam-fredrickson/deepmerge/internal/logging"
)

func main() {
	logger, err := logging.New(os.Getenv("DEEPMERGE_LOG_LEVEL"), os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "deepmerge-krm:", err)
		os.Exit(1)
	}

	// Read ResourceList from stdin, write to stdout
	if err := Run(os.Stdin, os.Stdout, logger); err != nil {
		_ = logger.Sync()
		fmt.Fprintln(os.Stderr, "deepmerge-krm:", err)
		os.Exit(1)
	}
	_ = logger.Sync()
}
