// Command mseedindex scans miniSEED record streams and reconciles their
// section extents into a time-series index store.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/mseedindex/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
