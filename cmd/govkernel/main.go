// Command govkernel runs the governance kernel as an HTTP service or as a
// one-shot CLI against a configured ledger.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
